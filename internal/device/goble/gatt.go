package goble

import "strings"

// wellKnownServices names the Bluetooth SIG services wearables commonly
// advertise, for log readability. Unlisted UUIDs pass through as-is.
var wellKnownServices = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"1810": "Blood Pressure",
	"1812": "Human Interface Device",
	"1814": "Running Speed and Cadence",
	"1816": "Cycling Speed and Cadence",
	"181b": "Body Composition",
	"1822": "Pulse Oximeter",
	"fee0": "Xiaomi Wearable Service",
	"fee1": "Xiaomi Wearable Service",
}

// serviceName resolves a service UUID to its SIG name, falling back to the
// UUID itself.
func serviceName(uuid string) string {
	if name, ok := wellKnownServices[strings.ToLower(uuid)]; ok {
		return name
	}
	return uuid
}
