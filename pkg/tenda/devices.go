package tenda

import (
	"fmt"
	"sort"
	"strings"
)

// DeviceRecord is one client associated with the router.
type DeviceRecord struct {
	MAC  string `json:"mac"`
	Name string `json:"name"`
}

// Devices maps a MAC address to the client's display name.
type Devices map[string]string

// Records returns the devices ordered by MAC.
func (d Devices) Records() []DeviceRecord {
	records := make([]DeviceRecord, 0, len(d))
	for mac, name := range d {
		records = append(records, DeviceRecord{MAC: mac, Name: name})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].MAC < records[j].MAC
	})
	return records
}

// fieldRule reads key from an entry. When requires is set, the rule only
// applies to entries that also carry that key.
type fieldRule struct {
	key      string
	requires string
}

func (r fieldRule) resolve(entry map[string]interface{}) (string, bool) {
	if r.requires != "" {
		if _, ok := entry[r.requires]; !ok {
			return "", false
		}
	}
	raw, ok := entry[r.key]
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(str(raw))
	return value, value != ""
}

// Firmware variants name the same fields differently; rules are tried in
// order and the first that resolves wins.
var (
	macRules = []fieldRule{
		{key: "deviceId"},
		{key: "localhostMac", requires: "localhostName"},
	}
	nameRules = []fieldRule{
		{key: "devName"},
		{key: "localhostName", requires: "localhostName"},
	}
)

func resolve(rules []fieldRule, entry map[string]interface{}) (string, bool) {
	for _, rule := range rules {
		if value, ok := rule.resolve(entry); ok {
			return value, true
		}
	}
	return "", false
}

// NormalizeDevices folds a raw client list into Devices. Entries without a
// resolvable MAC are skipped, and a later entry replaces an earlier one with
// the same MAC.
func NormalizeDevices(entries []interface{}) Devices {
	devices := make(Devices, len(entries))
	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		mac, ok := resolve(macRules, entry)
		if !ok {
			continue
		}
		name, _ := resolve(nameRules, entry)
		devices[mac] = name
	}
	return devices
}

func str(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", v)
	}
}
