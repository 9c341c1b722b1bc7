package angel

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Transport modes
const (
	ModeBridge = "bridge" // POST {action, data} to a relay that forwards to SmartAPI
	ModeDirect = "direct" // call SmartAPI endpoints directly
)

// DefaultBaseURL is the SmartAPI host used in direct mode
const DefaultBaseURL = "https://apiconnect.angelbroking.com"

// Actions understood by the bridge and mapped to SmartAPI paths in direct mode
const (
	ActionLTP     = "ltp"
	ActionHistory = "history"
	ActionSearch  = "search"
)

var actionPaths = map[string]string{
	ActionLTP:     "/rest/secure/angelbroking/order/v1/getLtpData",
	ActionHistory: "/rest/secure/angelbroking/historical/v1/getCandleData",
	ActionSearch:  "/rest/secure/angelbroking/order/v1/searchScrip",
}

// Candle intervals
const (
	IntervalFifteenMinute = "FIFTEEN_MINUTE"
	IntervalOneDay        = "ONE_DAY"
)

// DateLayout is the local-time format SmartAPI expects for fromdate/todate
const DateLayout = "2006-01-02 15:04"

// envelope is the common SmartAPI response wrapper
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// bridgeRequest is the body posted to the relay
type bridgeRequest struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data"`
}

type ltpRequest struct {
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"tradingsymbol"`
	SymbolToken   string `json:"symboltoken"`
}

type ltpData struct {
	Exchange      string      `json:"exchange"`
	TradingSymbol string      `json:"tradingsymbol"`
	SymbolToken   string      `json:"symboltoken"`
	LTP           json.Number `json:"ltp"`
}

type historyRequest struct {
	Exchange    string `json:"exchange"`
	SymbolToken string `json:"symboltoken"`
	Interval    string `json:"interval"`
	FromDate    string `json:"fromdate"`
	ToDate      string `json:"todate"`
}

// CandleRow is one raw history row: [timestamp, open, high, low, close, volume?]
type CandleRow []json.RawMessage

type searchRequest struct {
	Exchange    string `json:"exchange"`
	SearchScrip string `json:"searchscrip"`
}

// ScripMatch is one searchScrip hit
type ScripMatch struct {
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"tradingsymbol"`
	SymbolToken   string `json:"symboltoken"`
}

// ScripEntry is one row of the public scrip master file
type ScripEntry struct {
	Token          string `json:"token"`
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	InstrumentType string `json:"instrumenttype"`
	ExchSeg        string `json:"exch_seg"`
}

// APIError is a failed broker call
type APIError struct {
	Action    string
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("angel %s: [%s] %s", e.Action, e.Code, e.Message)
	}
	if e.Status != 0 {
		return fmt.Sprintf("angel %s: status %d: %s", e.Action, e.Status, e.Message)
	}
	return fmt.Sprintf("angel %s: %s", e.Action, e.Message)
}

// isThrottled recognises SmartAPI's rate-limit rejections, which arrive as 200 or 403 bodies
func isThrottled(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "exceeding access rate") || strings.Contains(m, "too many requests")
}
