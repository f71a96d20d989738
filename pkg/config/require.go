package config

import (
	"fmt"
	"log"
)

func MustNonEmptyBytes(value []byte, envName string) {
	if len(value) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
}

// Validate reports the first configuration problem that would make the service unusable.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "pq":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for DB_DRIVER=%s", c.DBDriver)
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.CheckoutMaxAttempts < 1 {
		return fmt.Errorf("CHECKOUT_MAX_ATTEMPTS must be >= 1, got %d", c.CheckoutMaxAttempts)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("PAGE_SIZE must be >= 1, got %d", c.PageSize)
	}
	return nil
}
