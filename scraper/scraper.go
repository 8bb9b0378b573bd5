// Package scraper defines the shared vocabulary of the gatescrape module:
// the domain records extracted from router management pages, the credentials
// and capability types every device adapter uses, the error taxonomy, and the
// Scraper interface implemented by each router model.
package scraper

import (
	"context"
	"time"
)

// Operation identifies a data-retrieval operation a device adapter may support.
type Operation string

const (
	// OpListDevices retrieves the list of devices connected to the router.
	OpListDevices Operation = "list-devices"

	// OpListSMS retrieves the SMS inbox (mobile gateways only).
	OpListSMS Operation = "list-sms"
)

// CapabilitySet is the set of operations a device adapter variant supports.
// It is declared statically per router model and used to fail fast on
// unsupported calls before any network activity happens.
type CapabilitySet map[Operation]bool

// NewCapabilitySet builds a capability set from the given operations.
func NewCapabilitySet(ops ...Operation) CapabilitySet {
	set := make(CapabilitySet, len(ops))
	for _, op := range ops {
		set[op] = true
	}
	return set
}

// Supports reports whether the operation is declared by this set.
func (c CapabilitySet) Supports(op Operation) bool {
	return c[op]
}

// Credentials holds the connection parameters for a router.
// Credentials are owned by the device adapter they were constructed with;
// they are never stored in session state, never serialized into a session
// snapshot, and never logged.
type Credentials struct {
	// Host is the router address (name or IP, without scheme)
	Host string

	// Username is the management interface username
	Username string

	// Password is the management interface password
	Password string
}

// DeviceRecord is one device connected to the router.
type DeviceRecord struct {
	// Name is the hostname the router reports for the device
	Name string

	// MAC is the device hardware address as reported by the router
	MAC string

	// IP is the device address on the local network
	IP string

	// Extra carries model-specific fields that have no common meaning
	// (e.g. the Fastgate "family" flag or the network the device is on)
	Extra map[string]string
}

// SMSRecord is one message from the router's SMS inbox.
type SMSRecord struct {
	// Number is the sender number
	Number string

	// Timestamp is when the message was received
	Timestamp time.Time

	// Content is the message text
	Content string

	// Extra carries model-specific fields (e.g. inbox index, unread flag)
	Extra map[string]string
}

// Scraper is the public surface of a device adapter. One value represents one
// logical session against one router; calls on the same value must not be
// made concurrently (interleaving a login and a data request would corrupt
// the session token). Independent Scraper values are fully independent.
type Scraper interface {
	// Model returns the router model identifier (e.g. "fastgate-dn8245f2").
	Model() string

	// Capabilities returns the operations this model supports.
	Capabilities() CapabilitySet

	// ListDevices returns the devices currently connected to the router,
	// logging in first if necessary. Fails with *UnsupportedOperationError
	// when the model does not declare OpListDevices.
	ListDevices(ctx context.Context) ([]DeviceRecord, error)

	// ListSMS returns the router's SMS inbox, most recent first, logging in
	// first if necessary. Fails with *UnsupportedOperationError when the
	// model does not declare OpListSMS.
	ListSMS(ctx context.Context) ([]SMSRecord, error)

	// ExportSession serializes the current session state into an opaque
	// snapshot string. The snapshot never contains the password.
	ExportSession() (string, error)

	// RestoreSession restores session state from a snapshot produced by
	// ExportSession. The restored token is trusted optimistically; the next
	// data request proves (or disproves) its validity.
	RestoreSession(snapshot string) error

	// Close releases transport resources (connections, browser handles).
	// It is safe to call more than once.
	Close() error
}
