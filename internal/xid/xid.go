package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// SaleNumber renders {branchCode}-{yyyyMMddHHmmss}-{4 random upper-case
// hex chars}.
func SaleNumber(branchCode string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("%s-%s-%s", branchCode, at.UTC().Format("20060102150405"), suffix)
}
