package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/efreitasn/minibroker/internal/engine"
)

var durationEnvKeys = []string{
	"VWAP_WINDOW",
	"READ_TIMEOUT",
	"WRITE_TIMEOUT",
	"IDLE_TIMEOUT",
	"SHUTDOWN_TIMEOUT",
}

var allEnvKeys = append([]string{
	"PORT", "LOG_LEVEL", "TOP_UP_AMOUNT", "SELF_TRADE_POLICY",
	"BOOK_DEPTH_DEFAULT", "FEED_BUFFER", "CORS_ALLOWED_ORIGINS", "ENV_FILE",
}, durationEnvKeys...)

func unsetAllConfigEnv() {
	for _, key := range allEnvKeys {
		os.Unsetenv(key)
	}
}

// optional draws either "" (leave unset) or a value from gen.
func optional(t *rapid.T, label string, gen *rapid.Generator[string]) string {
	return rapid.OneOf(rapid.Just(""), gen).Draw(t, label)
}

func intString(lo, hi int) *rapid.Generator[string] {
	return rapid.Map(rapid.IntRange(lo, hi), func(v int) string { return fmt.Sprintf("%d", v) })
}

func TestProperty_ValidConfigParsing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		env := map[string]string{
			"PORT":               optional(t, "port", intString(1, 65535)),
			"LOG_LEVEL":          optional(t, "logLevel", rapid.SampledFrom([]string{"debug", "info", "warn", "error"})),
			"TOP_UP_AMOUNT":      optional(t, "topUp", intString(1, 1_000_000)),
			"SELF_TRADE_POLICY":  optional(t, "policy", rapid.SampledFrom([]string{"allow", "cancel_resting", "cancel_incoming"})),
			"BOOK_DEPTH_DEFAULT": optional(t, "depth", intString(1, 50)),
			"FEED_BUFFER":        optional(t, "feedBuffer", intString(1, 4096)),
		}
		for _, key := range durationEnvKeys {
			env[key] = optional(t, key, rapid.Custom(func(t *rapid.T) string {
				unit := rapid.SampledFrom([]string{"ms", "s", "m"}).Draw(t, "unit")
				return fmt.Sprintf("%d%s", rapid.IntRange(1, 600).Draw(t, "val"), unit)
			}))
		}
		for k, v := range env {
			if v != "" {
				os.Setenv(k, v)
			}
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error for valid inputs %v: %v", env, err)
		}

		intOr := func(key string, def int) int {
			if env[key] == "" {
				return def
			}
			var v int
			fmt.Sscanf(env[key], "%d", &v)
			return v
		}
		if cfg.Port != intOr("PORT", 8000) {
			t.Fatalf("Port = %d, env %q", cfg.Port, env["PORT"])
		}
		if cfg.TopUpAmount != int64(intOr("TOP_UP_AMOUNT", 100)) {
			t.Fatalf("TopUpAmount = %d, env %q", cfg.TopUpAmount, env["TOP_UP_AMOUNT"])
		}
		if cfg.BookDepthDefault != intOr("BOOK_DEPTH_DEFAULT", 10) {
			t.Fatalf("BookDepthDefault = %d, env %q", cfg.BookDepthDefault, env["BOOK_DEPTH_DEFAULT"])
		}
		if cfg.FeedBuffer != intOr("FEED_BUFFER", 256) {
			t.Fatalf("FeedBuffer = %d, env %q", cfg.FeedBuffer, env["FEED_BUFFER"])
		}

		wantLevel := env["LOG_LEVEL"]
		if wantLevel == "" {
			wantLevel = "info"
		}
		if cfg.LogLevel != wantLevel {
			t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, wantLevel)
		}

		wantPolicy := engine.SelfTradePolicy(env["SELF_TRADE_POLICY"])
		if wantPolicy == "" {
			wantPolicy = engine.SelfTradeAllow
		}
		if cfg.SelfTradePolicy != wantPolicy {
			t.Fatalf("SelfTradePolicy = %q, want %q", cfg.SelfTradePolicy, wantPolicy)
		}

		durations := map[string]struct {
			got time.Duration
			def time.Duration
		}{
			"VWAP_WINDOW":      {cfg.VWAPWindow, 5 * time.Minute},
			"READ_TIMEOUT":     {cfg.ReadTimeout, 5 * time.Second},
			"WRITE_TIMEOUT":    {cfg.WriteTimeout, 10 * time.Second},
			"IDLE_TIMEOUT":     {cfg.IdleTimeout, 60 * time.Second},
			"SHUTDOWN_TIMEOUT": {cfg.ShutdownTimeout, 10 * time.Second},
		}
		for key, d := range durations {
			want := d.def
			if env[key] != "" {
				want, _ = time.ParseDuration(env[key])
			}
			if d.got != want {
				t.Fatalf("%s = %v, want %v (env=%q)", key, d.got, want, env[key])
			}
		}
	})
}

func TestProperty_CORSOriginsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		origins := rapid.SliceOfN(rapid.StringMatching(`https://[a-z]{1,8}\.example`), 1, 5).Draw(t, "origins")
		padded := make([]string, len(origins))
		for i, o := range origins {
			padded[i] = strings.Repeat(" ", rapid.IntRange(0, 2).Draw(t, "pad")) + o
		}
		os.Setenv("CORS_ALLOWED_ORIGINS", strings.Join(padded, ","))

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load(): %v", err)
		}
		if !reflect.DeepEqual(cfg.CORSAllowedOrigins, origins) {
			t.Fatalf("CORSAllowedOrigins = %v, want %v", cfg.CORSAllowedOrigins, origins)
		}
	})
}

func TestProperty_OutOfRangeIntsReturnError(t *testing.T) {
	bounds := map[string][2]int{
		"PORT":               {1, 65535},
		"TOP_UP_AMOUNT":      {1, 1 << 30},
		"BOOK_DEPTH_DEFAULT": {1, 50},
		"FEED_BUFFER":        {1, 1 << 30},
	}
	for key, b := range bounds {
		t.Run(key, func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				unsetAllConfigEnv()
				defer unsetAllConfigEnv()

				v := rapid.OneOf(
					rapid.IntRange(-1000, b[0]-1),
					rapid.IntRange(b[1]+1, b[1]+1000),
				).Draw(t, "value")
				if key == "TOP_UP_AMOUNT" || key == "FEED_BUFFER" {
					v = rapid.IntRange(-1000, 0).Draw(t, "nonPositive")
				}
				os.Setenv(key, fmt.Sprintf("%d", v))

				if _, err := Load(); err == nil {
					t.Fatalf("Load() should reject %s=%d", key, v)
				}
			})
		})
	}
}

func TestProperty_InvalidEnumsReturnError(t *testing.T) {
	valid := map[string][]string{
		"LOG_LEVEL":         {"debug", "info", "warn", "error"},
		"SELF_TRADE_POLICY": {"allow", "cancel_resting", "cancel_incoming"},
	}
	for key, accepted := range valid {
		t.Run(key, func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				unsetAllConfigEnv()
				defer unsetAllConfigEnv()

				v := rapid.StringMatching(`[a-z_]{1,20}`).Filter(func(s string) bool {
					for _, a := range accepted {
						if s == a {
							return false
						}
					}
					return true
				}).Draw(t, "value")
				os.Setenv(key, v)

				if _, err := Load(); err == nil {
					t.Fatalf("Load() should reject %s=%q", key, v)
				}
			})
		})
	}
}

func TestProperty_InvalidDurationReturnsError(t *testing.T) {
	for _, key := range durationEnvKeys {
		t.Run(key, func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				unsetAllConfigEnv()
				defer unsetAllConfigEnv()

				invalid := rapid.StringMatching(`[a-zA-Z]{2,10}`).Filter(func(s string) bool {
					_, err := time.ParseDuration(s)
					return err != nil
				}).Draw(t, "invalidDuration")
				os.Setenv(key, invalid)

				if _, err := Load(); err == nil {
					t.Fatalf("Load() should reject %s=%q", key, invalid)
				}
			})
		})
	}
}
