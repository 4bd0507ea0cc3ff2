package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/config"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/httpapi"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func validConfig() config.Config {
	return config.Config{
		AuthSecret:      strongSecret,
		AccessTokenTTL:  time.Hour,
		CommissionRate:  decimal.RequireFromString("0.06"),
		LockWaitTimeout: 5 * time.Second,
	}
}

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cfg := validConfig()
	cfg.AuthSecret = "short"
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}

	cfg = validConfig()
	cfg.CommissionRate = decimal.NewFromInt(1)
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected commission rate of 1 to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	if err := validateSecurityConfig(validConfig()); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestIssueTokenPrintsVerifiableToken(t *testing.T) {
	cfg := validConfig()
	var out bytes.Buffer

	if err := issueToken(&out, cfg, []string{"-user", "layla", "-role", domain.RoleAccountant}); err != nil {
		t.Fatalf("issue token: %v", err)
	}

	actor, err := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL).ParseToken(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("parse printed token: %v", err)
	}
	if actor.Username != "layla" || actor.Role != domain.RoleAccountant {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestIssueTokenRequiresUser(t *testing.T) {
	var out bytes.Buffer
	if err := issueToken(&out, validConfig(), []string{"-role", domain.RoleSales}); err == nil {
		t.Fatalf("expected missing user to be rejected")
	}
}
