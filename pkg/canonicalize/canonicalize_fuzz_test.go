package canonicalize

import (
	"encoding/json"
	"testing"
)

func FuzzJCS(f *testing.F) {
	// Seed with the JSON shapes that actually flow through the hasher:
	// inject-event bodies, envelope payloads, and registry documents.
	f.Add([]byte(`{"case_id":"case-1","event_type":"inbound.subject_message"}`))
	f.Add([]byte(`{"full_name":"Ada Lovelace","contact":"ada@example.com","reason":"persistent headaches"}`))
	f.Add([]byte(`{"severity":7,"level":"HIGH"}`))
	f.Add([]byte(`{"hold_id":"h-1","slot":{"date":"2026-09-01","time":"09:00","provider":"provider-1"}}`))
	f.Add([]byte(`{"holds":[{"hold_id":"h-1","status":"HELD","expires_at":"2026-09-01T10:30:00Z"}]}`))
	f.Add([]byte(`{"message":"<b>urgent</b> pain & swelling"}`))
	f.Add([]byte(`{"message":"línea1\nlínea2\ttab"}`))
	f.Add([]byte(`{"due_at":"2026-09-07T09:00:00Z","missing_fields":["contact","reason"]}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"":"empty key","payload":null}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			t.Skip("not valid JSON")
			return
		}

		b1, err := JCS(v)
		if err != nil {
			// Not every valid JSON value canonicalizes (e.g. numbers out
			// of IEEE 754 range); an error is an acceptable outcome.
			return
		}

		b2, err := JCS(v)
		if err != nil {
			t.Fatal("second canonicalization errored where the first succeeded")
		}
		if string(b1) != string(b2) {
			t.Errorf("canonical form unstable:\n  first:  %s\n  second: %s", b1, b2)
		}

		// The canonical form must itself be valid JSON; it is stored in
		// log entries and re-read by operators.
		var check any
		if err := json.Unmarshal(b1, &check); err != nil {
			t.Errorf("canonical output is not valid JSON: %s", string(b1))
		}

		h1, err := CanonicalHash(v)
		if err != nil {
			return
		}
		h2, err := CanonicalHash(v)
		if err != nil {
			t.Fatal("second hash errored where the first succeeded")
		}
		if h1 != h2 {
			t.Errorf("payload hash unstable: %s != %s", h1, h2)
		}
		if h1 != HashBytes(b1) {
			t.Errorf("CanonicalHash disagrees with HashBytes over the canonical form")
		}
	})
}

func FuzzJCSString(f *testing.F) {
	f.Add([]byte(`{"booking_ref":"bk-1"}`))
	f.Add([]byte(`{"severity":3,"phase":"FOLLOW_UP","dwell":"25h0m0s"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			t.Skip("not valid JSON")
			return
		}

		s, err := JCSString(v)
		if err != nil {
			return
		}
		b, err := JCS(v)
		if err != nil {
			t.Fatal("JCS errored where JCSString succeeded")
		}
		if s != string(b) {
			t.Errorf("JCSString diverges from JCS: %q vs %q", s, string(b))
		}
	})
}
