package config

import "testing"

func TestCanonicalizeEnvKey_UsesExistingCamelCaseKeys(t *testing.T) {
	existing := map[string]any{
		"postgres": map[string]any{
			"sslMode": "disable",
			"dbName":  "gatehouse",
		},
		"auth": map[string]any{
			"sessionTtl":    "720h",
			"slidingExpiry": true,
		},
		"secretKey": map[string]any{
			"access": "",
		},
	}

	tests := []struct {
		envKey string
		want   string
	}{
		{envKey: "POSTGRES_SSLMODE", want: "postgres.sslMode"},
		{envKey: "POSTGRES_DBNAME", want: "postgres.dbName"},
		{envKey: "AUTH_SESSIONTTL", want: "auth.sessionTtl"},
		{envKey: "AUTH_SLIDINGEXPIRY", want: "auth.slidingExpiry"},
		{envKey: "SECRETKEY_ACCESS", want: "secretKey.access"},
		{envKey: "NEW_FEATURE_FLAG", want: "new.feature.flag"},
	}

	for _, tt := range tests {
		t.Run(tt.envKey, func(t *testing.T) {
			if got := canonicalizeEnvKey(tt.envKey, existing); got != tt.want {
				t.Fatalf("canonicalizeEnvKey(%q) = %q, want %q", tt.envKey, got, tt.want)
			}
		})
	}
}

func TestApplyAuthDefaults(t *testing.T) {
	cfg := &Config{}
	applyAuthDefaults(cfg)

	if cfg.Auth == nil {
		t.Fatal("expected auth config to be populated")
	}
	if cfg.Auth.SessionTTL != defaultSessionTTL {
		t.Errorf("SessionTTL = %v, want %v", cfg.Auth.SessionTTL, defaultSessionTTL)
	}
	if cfg.Auth.MinPasswordLength != DefaultMinPasswordLength {
		t.Errorf("MinPasswordLength = %d, want %d", cfg.Auth.MinPasswordLength, DefaultMinPasswordLength)
	}
	if cfg.Auth.SessionStore != defaultSessionStore {
		t.Errorf("SessionStore = %q, want %q", cfg.Auth.SessionStore, defaultSessionStore)
	}
	if cfg.Auth.CookieName != defaultCookieName {
		t.Errorf("CookieName = %q, want %q", cfg.Auth.CookieName, defaultCookieName)
	}
}
