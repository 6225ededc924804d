package rediskey

import (
	"fmt"
	"strings"
)

const (
	PricePrefix          = "price"
	BalancePrefix        = "balance"
	WithdrawalLockPrefix = "lock:withdrawal:user"
	AccrualTickLock      = "lock:accrual:tick"
	SequencePrefix       = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildPriceKey returns "price:{SYMBOL}"
func BuildPriceKey(symbol string) string {
	return NamespaceKey(PricePrefix, strings.ToUpper(symbol))
}

// BuildBalanceKey returns "balance:{userID}:{version}"
func BuildBalanceKey(userID string, version int64) string {
	return fmt.Sprintf("%s:%s:%d", BalancePrefix, userID, version)
}

// BuildBalanceVersionKey returns "balance:ver:{userID}"
func BuildBalanceVersionKey(userID string) string {
	return NamespaceKey(BalancePrefix+":ver", userID)
}

// BuildWithdrawalLockKey returns "lock:withdrawal:user:{userID}"
func BuildWithdrawalLockKey(userID string) string {
	return NamespaceKey(WithdrawalLockPrefix, userID)
}
