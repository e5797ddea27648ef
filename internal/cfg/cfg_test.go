package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		APIToken:              "test-token-123",
		ClaudeAPIKey:          "sk-test-key",
		ClaudeModel:           "claude-sonnet-4-20250514",
		HandbookEndpoint:      "http://localhost:7700",
		IdleTimeoutSeconds:    1800,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.ClaudeModel != "claude-sonnet-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-sonnet-4-20250514")
	}
	if c.IdleTimeoutSeconds != 1800 {
		t.Errorf("IdleTimeoutSeconds = %d, want 1800", c.IdleTimeoutSeconds)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-api-token", "tok-override",
		"-claude-api-key", "sk-override",
		"-claude-model", "claude-opus-4-20250514",
		"-handbook-endpoint", "http://handbook:7700",
		"-roster-endpoint", "http://pm:8090",
		"-idle-timeout-seconds", "600",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.APIToken != "tok-override" {
		t.Errorf("APIToken = %q, want %q", c.APIToken, "tok-override")
	}
	if c.ClaudeAPIKey != "sk-override" {
		t.Errorf("ClaudeAPIKey = %q, want %q", c.ClaudeAPIKey, "sk-override")
	}
	if c.HandbookEndpoint != "http://handbook:7700" {
		t.Errorf("HandbookEndpoint = %q, want %q", c.HandbookEndpoint, "http://handbook:7700")
	}
	if c.RosterEndpoint != "http://pm:8090" {
		t.Errorf("RosterEndpoint = %q, want %q", c.RosterEndpoint, "http://pm:8090")
	}
	if c.IdleTimeoutSeconds != 600 {
		t.Errorf("IdleTimeoutSeconds = %d, want 600", c.IdleTimeoutSeconds)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "defaults are valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name: "minimum valid values",
			cfg: Config{
				DrainSeconds: 1, ShutdownBudgetSeconds: 2, APIPort: 1,
				APIToken: "t", ClaudeAPIKey: "k", ClaudeModel: "m",
				HandbookEndpoint: "http://h", IdleTimeoutSeconds: 60,
			},
			wantErr: false,
		},
		{
			name: "maximum valid values",
			cfg: Config{
				DrainSeconds: 299, ShutdownBudgetSeconds: 300, APIPort: 65535,
				APIToken: "t", ClaudeAPIKey: "k", ClaudeModel: "m",
				HandbookEndpoint: "http://h", IdleTimeoutSeconds: 86400,
			},
			wantErr: false,
		},
		// DrainSeconds boundaries
		{
			name:      "drain zero",
			cfg:       Config{DrainSeconds: 0, ShutdownBudgetSeconds: 90, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       Config{DrainSeconds: 301, ShutdownBudgetSeconds: 302, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		// ShutdownBudgetSeconds boundaries
		{
			name:      "budget zero",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 0, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		// Cross-field: budget vs drain
		{
			name:      "budget equals drain",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 60, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "budget less than drain",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 30, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		// APIPort boundaries
		{
			name:      "port zero",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 0},
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 65536},
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		// Required string fields
		{
			name: "empty api token",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "", ClaudeAPIKey: "k", ClaudeModel: "m",
				HandbookEndpoint: "http://h", IdleTimeoutSeconds: 1800,
			},
			wantErr:   true,
			errSubstr: []string{"API_TOKEN"},
		},
		{
			name: "empty claude api key",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "t", ClaudeAPIKey: "", ClaudeModel: "m",
				HandbookEndpoint: "http://h", IdleTimeoutSeconds: 1800,
			},
			wantErr:   true,
			errSubstr: []string{"CLAUDE_API_KEY"},
		},
		{
			name: "empty claude model",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "t", ClaudeAPIKey: "k", ClaudeModel: "",
				HandbookEndpoint: "http://h", IdleTimeoutSeconds: 1800,
			},
			wantErr:   true,
			errSubstr: []string{"CLAUDE_MODEL"},
		},
		{
			name: "empty handbook endpoint",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "t", ClaudeAPIKey: "k", ClaudeModel: "m",
				HandbookEndpoint: "", IdleTimeoutSeconds: 1800,
			},
			wantErr:   true,
			errSubstr: []string{"HANDBOOK_ENDPOINT"},
		},
		// Idle timeout boundaries
		{
			name: "idle timeout too small",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "t", ClaudeAPIKey: "k", ClaudeModel: "m",
				HandbookEndpoint: "http://h", IdleTimeoutSeconds: 59,
			},
			wantErr:   true,
			errSubstr: []string{"IDLE_TIMEOUT_SECONDS"},
		},
		{
			name: "idle timeout too large",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "t", ClaudeAPIKey: "k", ClaudeModel: "m",
				HandbookEndpoint: "http://h", IdleTimeoutSeconds: 86401,
			},
			wantErr:   true,
			errSubstr: []string{"IDLE_TIMEOUT_SECONDS"},
		},
		// Error accumulation: all fields invalid
		{
			name:      "all fields invalid",
			cfg:       Config{DrainSeconds: 0, ShutdownBudgetSeconds: 0, APIPort: 0},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "API_TOKEN", "CLAUDE_API_KEY", "CLAUDE_MODEL", "HANDBOOK_ENDPOINT", "IDLE_TIMEOUT_SECONDS"},
		},
		// Extreme values
		{
			name:      "extreme negative values",
			cfg:       Config{DrainSeconds: math.MinInt32, ShutdownBudgetSeconds: math.MinInt32, APIPort: math.MinInt32},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	// Seeds: defaults, boundaries, extremes
	seeds := []struct {
		drain, budget, port, idle   int
		token, key, model, handbook string
	}{
		{60, 90, 8080, 1800, "tok", "sk-test", "claude-sonnet", "http://h"},
		{1, 2, 1, 60, "t", "k", "m", "http://h"},
		{299, 300, 65535, 86400, "t", "k", "m", "http://h"},
		{0, 0, 0, 0, "", "", "", ""},
		{-1, -1, -1, -1, "", "", "", ""},
		{301, 302, 65536, 86401, "", "", "", ""},
		{150, 100, 8080, 1800, "t", "k", "m", "http://h"},
		{math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, "", "", "", ""},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, "", "", "", ""},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.idle, s.token, s.key, s.model, s.handbook)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port, idle int, token, key, model, handbook string) {
		c := Config{
			DrainSeconds:          drain,
			ShutdownBudgetSeconds: budget,
			APIPort:               port,
			APIToken:              token,
			ClaudeAPIKey:          key,
			ClaudeModel:           model,
			HandbookEndpoint:      handbook,
			IdleTimeoutSeconds:    idle,
		}
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		idleOK := idle >= 60 && idle <= 86400
		tokenOK := token != ""
		keyOK := key != ""
		modelOK := model != ""
		handbookOK := handbook != ""

		allValid := drainOK && budgetOK && portOK && crossOK && idleOK && tokenOK && keyOK && modelOK && handbookOK

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
