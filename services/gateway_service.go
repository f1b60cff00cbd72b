package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/edupartner/edupartner_backend/models"
)

// PayGateService handles interactions with the PayGate API
type PayGateService struct {
	baseURL    string
	merchant   string
	secret     string
	websiteURL string
}

// NewPayGateService creates a new PayGate service instance
func NewPayGateService() *PayGateService {
	baseURL := os.Getenv("PAYGATE_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.sandbox.paygate.example/collect-service/api/"
	}

	merchant := os.Getenv("PAYGATE_MERCHANT")
	secret := os.Getenv("PAYGATE_SECRET")
	websiteURL := os.Getenv("PAYGATE_WEBSITE_URL")

	if merchant == "" || secret == "" || websiteURL == "" {
		log.Printf("WARNING: PayGate credentials not fully configured:")
		if merchant == "" {
			log.Printf("  - PAYGATE_MERCHANT is missing")
		}
		if secret == "" {
			log.Printf("  - PAYGATE_SECRET is missing")
		}
		if websiteURL == "" {
			log.Printf("  - PAYGATE_WEBSITE_URL is missing")
		}
		log.Printf("Please set these environment variables for the PayGate payment service to work")
	}

	return &PayGateService{
		baseURL:    baseURL,
		merchant:   merchant,
		secret:     secret,
		websiteURL: websiteURL,
	}
}

// getHeaders returns the standard headers required for PayGate API requests
func (s *PayGateService) getHeaders() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"merchant":     s.merchant,
		"secret":       s.secret,
		"websiteurl":   s.websiteURL,
	}
}

// makeRequest performs an HTTP request to the PayGate API
func (s *PayGateService) makeRequest(method, endpoint string, payload interface{}) (*models.PayGateResponse, error) {
	url := s.baseURL + endpoint

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if s.merchant == "" || s.secret == "" || s.websiteURL == "" {
		return nil, fmt.Errorf("missing PayGate credentials. Please set PAYGATE_MERCHANT, PAYGATE_SECRET, and PAYGATE_WEBSITE_URL environment variables")
	}

	for key, value := range s.getHeaders() {
		req.Header.Set(key, value)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if os.Getenv("PAYGATE_DEBUG") == "true" {
		log.Printf("PayGate API response: %s", string(respBody))
	}

	var gatewayResp models.PayGateResponse
	if err := json.Unmarshal(respBody, &gatewayResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w\nResponse body: %s", err, string(respBody))
	}

	if !gatewayResp.Status {
		code := "unknown"
		if gatewayResp.Code != nil {
			if codeStr, ok := gatewayResp.Code.(string); ok {
				code = codeStr
			} else {
				code = fmt.Sprintf("%v", gatewayResp.Code)
			}
		}

		var errorMsg string
		if gatewayResp.Dialog != nil {
			if dialogMap, ok := gatewayResp.Dialog.(map[string]interface{}); ok {
				if msg, ok := dialogMap["message"].(string); ok {
					errorMsg = fmt.Sprintf("paygate API error: %s - %s", code, msg)
				}
			}
		}

		if errorMsg == "" {
			errorMsg = fmt.Sprintf("paygate API error: %s", code)
		}

		return &gatewayResp, fmt.Errorf("%s", errorMsg)
	}

	return &gatewayResp, nil
}

// GetBalance retrieves the real balance of the merchant account
func (s *PayGateService) GetBalance() (float64, error) {
	resp, err := s.makeRequest("GET", "payment/account/balance", nil)
	if err != nil {
		return 0, err
	}

	if balanceDetails, ok := resp.Data["balanceDetails"].(map[string]interface{}); ok {
		if balance, ok := balanceDetails["balance"].(float64); ok {
			return balance, nil
		}
	}

	return 0, fmt.Errorf("failed to parse balance from response")
}

// PostPayment creates a payment collect and returns the collect URL
func (s *PayGateService) PostPayment(req models.PayGateRequest) (string, error) {
	resp, err := s.makeRequest("POST", "payment/collect", req)
	if err != nil {
		return "", err
	}

	if collectURL, ok := resp.Data["collectUrl"].(string); ok {
		return collectURL, nil
	}

	return "", fmt.Errorf("failed to parse collect URL from response")
}

// GetPaymentStatus returns the status of a payment collect
func (s *PayGateService) GetPaymentStatus(currency string, externalID int64) (string, string, error) {
	payload := models.PayGateRequest{
		Currency:   currency,
		ExternalID: &externalID,
	}

	resp, err := s.makeRequest("POST", "payment/collect/status", payload)
	if err != nil {
		return "", "", err
	}

	var status, phoneNumber string

	if st, ok := resp.Data["collectStatus"].(string); ok {
		status = st
	}

	if pn, ok := resp.Data["payerPhoneNumber"].(string); ok {
		phoneNumber = pn
	}

	return status, phoneNumber, nil
}
