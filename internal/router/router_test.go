package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"patient-records-access/internal/router"
)

func TestHTTP_EndToEnd_GrantCheckRevoke(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{AuthVerifier: nil}))
	defer ts.Close()

	patientID := "patient-1"
	hospitalID := "hospital-1"

	// 1) Sin grant el hospital no tiene acceso
	{
		d := checkAccess(t, ts.URL, hospitalID, patientID, "")
		if d["denied"] != true {
			t.Fatalf("expected denied before grant, got %v", d)
		}
	}

	// 2) Un tercero no puede otorgar en nombre del paciente
	{
		st, _ := doReq(t, ts.URL, "POST", "/patients/"+patientID+"/grants", hospitalID, map[string]any{
			"grantee_id": hospitalID, "entity_type": "hospital", "level": "full_access",
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 granting for someone else, got %d", st)
		}
	}

	// 3) El paciente otorga view_records
	grantID := createGrant(t, ts.URL, patientID, hospitalID, "view_records")

	// 4) El hospital consulta su propio nivel
	{
		d := checkAccess(t, ts.URL, hospitalID, patientID, "")
		if d["level"] != "view_records" || d["source"] != "grant" {
			t.Fatalf("expected view_records from grant, got %v", d)
		}
	}

	// 5) Solo el granter puede revocar
	{
		st, _ := doReq(t, ts.URL, "POST", "/grants/"+grantID+"/revoke", hospitalID, nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 revoke by grantee, got %d", st)
		}
		st, body := doReq(t, ts.URL, "POST", "/grants/"+grantID+"/revoke", patientID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 revoke, got %d body=%s", st, string(body))
		}
	}

	// 6) Revocado => denied
	{
		d := checkAccess(t, ts.URL, patientID, patientID, hospitalID)
		if d["denied"] != true {
			t.Fatalf("expected denied after revoke, got %v", d)
		}
	}

	// 7) Audit del paciente: grant + revoke
	{
		st, body := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/audit", patientID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 audit, got %d body=%s", st, string(body))
		}
		var evs []map[string]any
		if err := json.Unmarshal(body, &evs); err != nil {
			t.Fatalf("unmarshal audit: %v", err)
		}
		if len(evs) != 2 || evs[0]["action"] != "grant" || evs[1]["action"] != "revoke" {
			t.Fatalf("unexpected audit trail: %s", string(body))
		}

		st, _ = doReq(t, ts.URL, "GET", "/patients/"+patientID+"/audit", hospitalID, nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 reading someone else's audit, got %d", st)
		}
	}
}

func TestHTTP_EmergencyRedeem_OnceOnly(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{}))
	defer ts.Close()

	patientID := "patient-9"

	st, body := doReq(t, ts.URL, "POST", "/patients/"+patientID+"/emergency-tokens", patientID, nil)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 issue, got %d body=%s", st, string(body))
	}
	var tok map[string]any
	mustJSON(t, body, &tok)
	code, _ := tok["token"].(string)
	if len(code) != 14 || tok["state"] != "issued" {
		t.Fatalf("unexpected token response: %s", string(body))
	}

	// Alerta activa visible para el paciente
	{
		st, body := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/emergency-tokens?active=true", patientID, nil)
		if st != http.StatusOK || !strings.Contains(string(body), code) {
			t.Fatalf("expected active token listed, got %d body=%s", st, string(body))
		}
	}

	// Sin canje no hay perfil
	{
		st, _ := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/emergency-profile", "medic-1", nil)
		if st != http.StatusServiceUnavailable && st != http.StatusForbidden {
			t.Fatalf("expected profile to be unavailable, got %d", st)
		}
	}

	// Canje con formato libre (minúsculas, sin guiones)
	loose := strings.ToLower(strings.ReplaceAll(code, "-", ""))
	st, body = doReq(t, ts.URL, "POST", "/emergency/redeem", "medic-1", map[string]any{"token": loose})
	if st != http.StatusOK {
		t.Fatalf("expected 200 redeem, got %d body=%s", st, string(body))
	}
	var out map[string]any
	mustJSON(t, body, &out)
	handle, _ := out["handle"].(map[string]any)
	if handle["patient_id"] != patientID || handle["actor_id"] != "medic-1" {
		t.Fatalf("unexpected handle: %s", string(body))
	}

	// Segundo canje: opaco, mismo mensaje que un token inexistente
	st, body = doReq(t, ts.URL, "POST", "/emergency/redeem", "medic-2", map[string]any{"token": code})
	if st != http.StatusForbidden {
		t.Fatalf("expected 403 on reuse, got %d", st)
	}
	_, unknown := doReq(t, ts.URL, "POST", "/emergency/redeem", "medic-2", map[string]any{"token": "AAAA-BBBB-CCCC"})
	if string(body) != string(unknown) {
		t.Fatalf("reuse and unknown must look identical: %s vs %s", string(body), string(unknown))
	}

	// El que canjeó tiene acceso full por permiso temporal
	d := checkAccess(t, ts.URL, "medic-1", patientID, "")
	if d["level"] != "full_access" || d["source"] != "temporary" {
		t.Fatalf("expected temporary full access, got %v", d)
	}
}

func TestHTTP_TemporaryAccess(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{}))
	defer ts.Close()

	patientID := "patient-3"
	doctorID := "doctor-3"

	st, body := doReq(t, ts.URL, "POST", "/patients/"+patientID+"/temporary-access", patientID, map[string]any{
		"accessor_id": doctorID, "scope": "partial", "ttl": "30m",
	})
	if st != http.StatusCreated {
		t.Fatalf("expected 201 temporary grant, got %d body=%s", st, string(body))
	}
	var p map[string]any
	mustJSON(t, body, &p)
	permID, _ := p["id"].(string)
	if p["valid"] != true || p["source"] != "approval" {
		t.Fatalf("unexpected permission: %s", string(body))
	}

	if d := checkAccess(t, ts.URL, doctorID, patientID, ""); d["level"] != "view_records" {
		t.Fatalf("expected view_records, got %v", d)
	}

	// El accessor puede renunciar a su permiso
	st, body = doReq(t, ts.URL, "POST", "/temporary-access/"+permID+"/revoke", doctorID, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 revoke, got %d body=%s", st, string(body))
	}
	mustJSON(t, body, &p)
	if p["valid"] != false {
		t.Fatalf("expected invalid after revoke: %s", string(body))
	}

	if d := checkAccess(t, ts.URL, doctorID, patientID, ""); d["denied"] != true {
		t.Fatalf("expected denied after revoke, got %v", d)
	}
}

func TestHTTP_RejectsBadInput(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{}))
	defer ts.Close()

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"no auth", "GET", "/patients/p/grants", "", nil, http.StatusUnauthorized},
		{"unknown level", "POST", "/patients/p/grants", "p", map[string]any{"grantee_id": "h", "entity_type": "hospital", "level": "admin"}, http.StatusBadRequest},
		{"unknown entity", "POST", "/patients/p/grants", "p", map[string]any{"grantee_id": "h", "entity_type": "clinic", "level": "view_summary"}, http.StatusBadRequest},
		{"bad ttl", "POST", "/patients/p/temporary-access", "p", map[string]any{"accessor_id": "d", "scope": "full", "ttl": "soon"}, http.StatusBadRequest},
		{"missing grant", "POST", "/grants/nope/revoke", "p", nil, http.StatusNotFound},
		{"access of others", "GET", "/patients/p/access?accessor_id=x", "y", nil, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, body := doReq(t, ts.URL, tc.method, tc.path, tc.user, tc.body)
			if st != tc.want {
				t.Fatalf("expected %d, got %d body=%s", tc.want, st, string(body))
			}
		})
	}
}

func TestHTTP_Health(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{}))
	defer ts.Close()

	st, body := doReq(t, ts.URL, "GET", "/health", "", nil)
	if st != http.StatusOK || string(body) != "ok" {
		t.Fatalf("expected ok, got %d %q", st, string(body))
	}
}

func createGrant(t *testing.T, baseURL, patientID, granteeID, level string) string {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/patients/"+patientID+"/grants", patientID, map[string]any{
		"grantee_id":  granteeID,
		"entity_type": "hospital",
		"level":       level,
	})
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create grant, got %d body=%s", st, string(body))
	}
	var out map[string]any
	mustJSON(t, body, &out)
	id, _ := out["id"].(string)
	if id == "" {
		t.Fatalf("grant id missing: %s", string(body))
	}
	return id
}

func checkAccess(t *testing.T, baseURL, userID, patientID, accessorID string) map[string]any {
	t.Helper()

	path := "/patients/" + patientID + "/access"
	if accessorID != "" {
		path += "?accessor_id=" + accessorID
	}
	st, body := doReq(t, baseURL, "GET", path, userID, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 check, got %d body=%s", st, string(body))
	}
	var out map[string]any
	mustJSON(t, body, &out)
	return out
}

func mustJSON(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("unmarshal: %v body=%s", err, string(body))
	}
}

func doReq(t *testing.T, baseURL, method, path, debugUserID string, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if debugUserID != "" {
		req.Header.Set("X-Debug-User-ID", debugUserID)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, respBody
}
