package structs

// RouterInfoRequest implements the router-info request.
type RouterInfoRequest struct {
	Router EUI64 `json:"router"`
}

// RouterInfoResponse implements the router-info response.
type RouterInfoResponse struct {
	Router EUI64  `json:"router"`
	Muxs   string `json:"muxs"`
	URI    string `json:"uri,omitempty"`
	Error  string `json:"error,omitempty"` // only in case of error
}
