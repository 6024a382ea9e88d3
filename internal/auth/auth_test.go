package auth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSign_KnownVector(t *testing.T) {
	// Reference vector from the BitMEX API documentation.
	c := &Credentials{
		APIKey:    "LAqUlngMIQkIUjXMUreyu3qn",
		APISecret: "chNOOS4KvNXR_Xq4k4c9qsfoKWvnDecLATCRlcBwyKDYnWgO",
	}

	got := c.Sign("GET", "/api/v1/instrument", 1518064236, nil)
	want := "c7682d435d0cfe87c16098df34ef2eb5a549d4c5a3c2b1f0f77b8af73423bf00"
	if got != want {
		t.Errorf("Sign = %s, want %s", got, want)
	}
}

func TestSign_WithBody(t *testing.T) {
	// POST vector from the BitMEX API documentation.
	c := &Credentials{
		APIKey:    "LAqUlngMIQkIUjXMUreyu3qn",
		APISecret: "chNOOS4KvNXR_Xq4k4c9qsfoKWvnDecLATCRlcBwyKDYnWgO",
	}

	body := []byte(`{"symbol":"XBTM15","price":219.0,"clOrdID":"mm_bitmex_1a/oemUeQ4CAJZgP3fjHsA","orderQty":98}`)
	got := c.Sign("POST", "/api/v1/order", 1518064238, body)
	want := "1749cd2ccae4aa49048ae09f0b95110cee706e0944e6a14ad0b3a8cb45bd336b"
	if got != want {
		t.Errorf("Sign = %s, want %s", got, want)
	}
}

func TestSignRequest_Headers(t *testing.T) {
	c := &Credentials{APIKey: "key", APISecret: "secret"}

	headers := c.SignRequest("GET", "/api/v1/trade", nil)
	for _, name := range []string{"api-key", "api-expires", "api-signature"} {
		if headers[name] == "" {
			t.Errorf("missing header %q", name)
		}
	}
	if headers["api-key"] != "key" {
		t.Errorf("api-key = %q, want %q", headers["api-key"], "key")
	}
}

func TestLoadCredentials(t *testing.T) {
	if _, err := LoadCredentials("", "secret"); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := LoadCredentials("key", ""); err == nil {
		t.Error("expected error for missing secret")
	}

	c, err := LoadCredentials("key", "inline-secret")
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if c.APISecret != "inline-secret" {
		t.Errorf("APISecret = %q", c.APISecret)
	}
}

func TestLoadCredentials_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("file-secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCredentials("key", "@"+path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if c.APISecret != "file-secret" {
		t.Errorf("APISecret = %q, want %q", c.APISecret, "file-secret")
	}
}
