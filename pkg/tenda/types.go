package tenda

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

const (
	// ModulePath is the RPC-style endpoint shared by login and most queries.
	ModulePath = "/goform/module"
	// OnlineListPath returns the raw list of associated clients.
	OnlineListPath = "/goform/getOnlineList"
)

// Fields of a getNetwork entry holding the current WAN rates.
const (
	FieldWANUpFlux   = "wanUpFlux"
	FieldWANDownFlux = "wanDownFlux"
)

type AuthPayload struct {
	Password string `json:"password"`
}

type AuthRequest struct {
	Auth AuthPayload `json:"auth"`
}

// NewAuthRequest wraps the password the way the login form submits it.
func NewAuthRequest(password string) AuthRequest {
	return AuthRequest{
		Auth: AuthPayload{
			Password: base64.StdEncoding.EncodeToString([]byte(password)),
		},
	}
}

// StatusRequest asks for the system, network and traffic sections at once.
// Empty strings are how the firmware expects a section to be selected.
type StatusRequest struct {
	GetSystemStatus string `json:"getSystemStatus"`
	GetNetwork      string `json:"getNetwork"`
	GetTrafficStat  string `json:"getTracfficStat"` // firmware spelling
}

type QoSUserListQuery struct {
	Type int `json:"type"`
}

type QoSUserListRequest struct {
	GetQosUserList QoSUserListQuery `json:"getQosUserList"`
}

type QoSUserListResponse struct {
	GetQosUserList []interface{} `json:"getQosUserList"`
}

// NewQoSUserListRequest builds the query for online (type 1) clients.
func NewQoSUserListRequest() QoSUserListRequest {
	return QoSUserListRequest{GetQosUserList: QoSUserListQuery{Type: 1}}
}

// NetworkStatus is the decoded status response, kept verbatim.
type NetworkStatus map[string]interface{}

// WANFlux returns a string field of the first getNetwork entry. Only one WAN
// is reported by the firmwares seen so far.
func (s NetworkStatus) WANFlux(field string) (string, bool) {
	networks, ok := s["getNetwork"].([]interface{})
	if !ok || len(networks) == 0 {
		return "", false
	}
	first, ok := networks[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	value, ok := first[field].(string)
	return value, ok
}

// DeviceSource selects which API lists the associated clients.
type DeviceSource int

const (
	// SourceOnlineList uses GET /goform/getOnlineList.
	SourceOnlineList DeviceSource = iota
	// SourceQoSUserList uses the getQosUserList RPC of older firmware.
	SourceQoSUserList
)

func (s DeviceSource) String() string {
	switch s {
	case SourceOnlineList:
		return "online-list"
	case SourceQoSUserList:
		return "qos"
	default:
		return "unknown"
	}
}

func ParseDeviceSource(name string) (DeviceSource, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "online-list":
		return SourceOnlineList, nil
	case "qos":
		return SourceQoSUserList, nil
	}
	return SourceOnlineList, errors.Errorf("unknown device source %q", name)
}
