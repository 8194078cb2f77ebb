package api

// tokenResponse is the OAuth token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// metersResponse is the /api/meters lookup response.
type metersResponse struct {
	Data []struct {
		ID       int    `json:"id"`
		Serial   string `json:"serial"`
		LastData struct {
			AccumulatedValue float64 `json:"accumulated_value"`
		} `json:"last_data"`
	} `json:"data"`
}

// meterReadingPayload is the PUT /api/meter_reading request body.
type meterReadingPayload struct {
	Date         string  `json:"date"`
	Value        float64 `json:"value"`
	Serial       string  `json:"serial"`
	IsHistorical bool    `json:"is_historical"`
}

// meterReadingResponse is the PUT /api/meter_reading response.
type meterReadingResponse struct {
	Success bool `json:"success"`
}
