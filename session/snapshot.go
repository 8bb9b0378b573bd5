package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gatescrape/gatescrape/scraper"
)

// snapshotVersion is the current snapshot format version. Bump when the
// payload shape changes; Restore rejects versions it does not know.
const snapshotVersion = 1

// snapshotPayload is the wire shape of a session snapshot: a JSON document
// carried as base64. Credentials and transport context are never part of it.
type snapshotPayload struct {
	Version  int       `json:"v"`
	Status   Status    `json:"status"`
	Token    string    `json:"token,omitempty"`
	IssuedAt time.Time `json:"issued_at,omitzero"`
}

// Snapshot serializes the current session state into an opaque snapshot
// string (base64-encoded JSON, versioned). The snapshot is safe to store at
// rest: it contains status, token and issue time only, never the password.
func (m *Machine) Snapshot() (string, error) {
	state := m.State()

	payload := snapshotPayload{
		Version:  snapshotVersion,
		Status:   state.Status,
		Token:    state.Token,
		IssuedAt: state.IssuedAt,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode session snapshot: %w", err)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// RestoreSnapshot replaces the session state with the one encoded in the
// snapshot. On any decoding or validation error it returns a
// *scraper.SnapshotError and leaves the current state untouched.
//
// A restored token is accepted optimistically: its validity is only proven
// by the next real request, which re-triggers a login if the router has
// expired the session in the meantime.
func (m *Machine) RestoreSnapshot(snapshot string) error {
	data, err := base64.StdEncoding.DecodeString(snapshot)
	if err != nil {
		return &scraper.SnapshotError{Err: fmt.Errorf("not valid base64: %w", err)}
	}

	var payload snapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return &scraper.SnapshotError{Err: fmt.Errorf("not valid JSON: %w", err)}
	}

	if payload.Version != snapshotVersion {
		return &scraper.SnapshotError{Err: fmt.Errorf("unknown format version %d", payload.Version)}
	}
	if !payload.Status.valid() {
		return &scraper.SnapshotError{Err: fmt.Errorf("unknown status %q", payload.Status)}
	}
	// Token presence must match the status, otherwise the snapshot was
	// tampered with or produced by a broken writer.
	if (payload.Status == StatusAuthenticated) != (payload.Token != "") {
		return &scraper.SnapshotError{Err: fmt.Errorf("token does not match status %q", payload.Status)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{
		Status:   payload.Status,
		Token:    payload.Token,
		IssuedAt: payload.IssuedAt,
	}
	return nil
}
