package shared

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

var (
	burnAddresses = map[string]int{
		"0x0000000000000000000000000000000000000000": 1,
		"0x000000000000000000000000000000000000dead": 1,
		"1nc1nerator11111111111111111111111111111111": 1,
	}
	lockAddresses             = make(map[string]string)
	saleAddresses             = make(map[string]string)
	AllowApiKeyNil            = true
	AllowApiKeyNilRateLimiter = 1000
	mu                        sync.RWMutex
)

// LoadEnv pulls the operator-maintained address books from the environment.
// Missing variables leave the built-in defaults in place.
func LoadEnv() (struct{}, error) {
	LoadAllowApiKey()
	LoadBurnAddresses()
	LoadLockAddresses()
	LoadSaleAddresses()
	return struct{}{}, nil
}

func LoadAllowApiKey() {
	AllowApiKeyNil = os.Getenv("ALLOW_API_KEY") != "false"
	fmt.Printf("AllowApiKeyNil is %t\n", AllowApiKeyNil)
	AllowApiKeyNilRateLimiterEnv := os.Getenv("ALLOW_API_KEY_DEFAULT_RATE_LIMITER")
	if AllowApiKeyNilRateLimiterEnv != "" {
		AllowApiKeyNilRateLimiter, _ = strconv.Atoi(AllowApiKeyNilRateLimiterEnv)
	}
	fmt.Printf("AllowApiKeyNilRateLimiter is %d\n", AllowApiKeyNilRateLimiter)
}

// LoadBurnAddresses parses BURN_ADDRESSES, a space-separated address list.
func LoadBurnAddresses() {
	addressesStr := os.Getenv("BURN_ADDRESSES")
	if addressesStr == "" {
		fmt.Println("env BURN_ADDRESSES not set")
		return
	}

	newBurnAddresses := make(map[string]int)
	for _, addr := range strings.Fields(addressesStr) {
		newBurnAddresses[strings.ToLower(addr)] = 1
	}

	mu.Lock()
	burnAddresses = newBurnAddresses
	mu.Unlock()
	fmt.Printf("env BURN_ADDRESSES set, length %d \n", len(newBurnAddresses))
}

// LoadLockAddresses parses LOCK_ADDRESSES, a JSON object of address to locker name.
func LoadLockAddresses() {
	addressesStr := os.Getenv("LOCK_ADDRESSES")
	if addressesStr == "" {
		fmt.Println("env LOCK_ADDRESSES not set")
		return
	}

	newLockAddresses := make(map[string]string)
	err := json.Unmarshal([]byte(addressesStr), &newLockAddresses)
	if err != nil {
		fmt.Println("error parsing LOCK_ADDRESSES:", err)
		return
	}

	normalized := make(map[string]string, len(newLockAddresses))
	for addr, name := range newLockAddresses {
		normalized[strings.ToLower(addr)] = name
	}

	mu.Lock()
	lockAddresses = normalized
	mu.Unlock()
	fmt.Printf("env LOCK_ADDRESSES set, length %d \n", len(normalized))
}

// LoadSaleAddresses parses SALE_ADDRESSES, a JSON object of address to venue name.
func LoadSaleAddresses() {
	addressesStr := os.Getenv("SALE_ADDRESSES")
	if addressesStr == "" {
		fmt.Println("env SALE_ADDRESSES not set")
		return
	}

	newSaleAddresses := make(map[string]string)
	err := json.Unmarshal([]byte(addressesStr), &newSaleAddresses)
	if err != nil {
		fmt.Println("error parsing SALE_ADDRESSES:", err)
		return
	}

	normalized := make(map[string]string, len(newSaleAddresses))
	for addr, name := range newSaleAddresses {
		normalized[strings.ToLower(addr)] = name
	}

	mu.Lock()
	saleAddresses = normalized
	mu.Unlock()
	fmt.Printf("env SALE_ADDRESSES set, length %d \n", len(normalized))
}

// IsBurnAddress reports whether the address is a recognized burn sink.
func IsBurnAddress(address string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, exists := burnAddresses[strings.ToLower(address)]
	return exists
}

// GetLockerName returns the locker service name for a known lock address.
func GetLockerName(address string) (string, bool) {
	mu.RLock()
	defer mu.RUnlock()

	name, exists := lockAddresses[strings.ToLower(address)]
	return name, exists
}

// GetSaleVenue returns the venue name for a known sale contract address.
func GetSaleVenue(address string) (string, bool) {
	mu.RLock()
	defer mu.RUnlock()

	name, exists := saleAddresses[strings.ToLower(address)]
	return name, exists
}
