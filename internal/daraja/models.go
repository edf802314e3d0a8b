package daraja

// authResponse is the OAuth token payload. Daraja sends expires_in
// as a string, not a number.
type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// STKPushInput carries caller-supplied fields for a payment prompt.
// Reference and description length caps are Daraja's own limits.
type STKPushInput struct {
	PhoneNumber      string `json:"phone_number" validate:"required,msisdn"`
	Amount           int64  `json:"amount" validate:"required,gt=0"`
	AccountReference string `json:"account_reference" validate:"required,max=12"`
	TransactionDesc  string `json:"transaction_desc" validate:"required,max=13"`
}

// stkPushRequest is the wire payload for the STK push endpoint.
type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is Daraja's acknowledgement of a payment prompt.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// stkQueryRequest is the wire payload for the STK status query endpoint.
type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// STKQueryResponse reports the outcome of a previously initiated prompt.
type STKQueryResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// gatewayFailure is the error body Daraja returns on non-2xx responses.
type gatewayFailure struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// CallbackEnvelope is the payment result Daraja posts to the callback URL.
type CallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback carries the result of one STK push attempt.
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata holds the success metadata items.
type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

// CallbackItem is a single name/value metadata pair. Items arrive in no
// particular order and individual names may be absent.
type CallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// MetadataValue returns the named metadata item value, or nil when absent.
func (c *STKCallback) MetadataValue(name string) interface{} {
	if c.CallbackMetadata == nil {
		return nil
	}
	for _, item := range c.CallbackMetadata.Item {
		if item.Name == name {
			return item.Value
		}
	}
	return nil
}
