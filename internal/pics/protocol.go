// Package pics talks to the Steam protocol helper, an external worker
// process holding the long-lived connection. Framing is one JSON object
// per line on the worker's stdin/stdout; every request carries a
// correlation id the response echoes back.
package pics

import (
	"encoding/json"
	"time"
)

// Worker commands.
const (
	cmdConnect        = "connect"
	cmdDisconnect     = "disconnect"
	cmdGetProductInfo = "get_product_info"
	cmdStatus         = "status"
	cmdShutdown       = "shutdown"
)

type request struct {
	ID      string  `json:"id"`
	Command string  `json:"command"`
	AppIDs  []int64 `json:"app_ids,omitempty"`
	Force   bool    `json:"force,omitempty"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ProductRecord is one app's PICS data as the worker reports it.
type ProductRecord struct {
	AppID             int64  `json:"app_id"`
	ChangeNumber      int64  `json:"change_number"`
	LastChangedUnix   int64  `json:"last_changed"`
	DeckCompat        string `json:"deck_compat"`
	Developer         string `json:"developer"`
	Publisher         string `json:"publisher"`
	ReviewScore       int64  `json:"review_score"`
	ReviewPercentage  int64  `json:"review_percentage"`
	ReleaseDate       string `json:"release_date"`
	ControllerSupport string `json:"controller_support"`

	// Languages split by whether audio is localized, not just text.
	Languages struct {
		Full  []string `json:"full"`
		Audio []string `json:"audio"`
	} `json:"languages"`
}

// LastChanged converts the worker's unix timestamp.
func (r *ProductRecord) LastChanged() time.Time {
	if r.LastChangedUnix == 0 {
		return time.Time{}
	}
	return time.Unix(r.LastChangedUnix, 0).UTC()
}

// Status is the worker's connection report.
type Status struct {
	Connected bool  `json:"connected"`
	LoggedIn  bool  `json:"logged_in"`
	CellID    int64 `json:"cell_id"`
}
