package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Mints an HS256 token with the shared secret and asks a running gate's
// forward-auth endpoint about a protected and an exempt path.
func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <hmac-secret> [server-addr]", os.Args[0])
	}

	secret := os.Args[1]
	serverAddr := "http://localhost:8123"
	if len(os.Args) > 2 {
		serverAddr = "http://localhost" + os.Args[2]
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         "e2e-user",
		"email":       "e2e@example.com",
		"rolesset":    []string{"admin", "ops"},
		"rolesstring": []string{"R1"},
		"authorities": []string{"READ", "WRITE"},
		"exp":         time.Now().Add(5 * time.Minute).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	passed := check(client, serverAddr, "/orders/42", "Bearer "+token, http.StatusOK)
	passed = check(client, serverAddr, "/orders/42", "", http.StatusUnauthorized) && passed
	passed = check(client, serverAddr, "/orders/42", "Basic xyz", http.StatusUnauthorized) && passed
	passed = check(client, serverAddr, "/api/auth/login", "", http.StatusOK) && passed

	if !passed {
		os.Exit(1)
	}
}

func check(client *http.Client, serverAddr, path, authorization string, want int) bool {
	req, err := http.NewRequest(http.MethodGet, serverAddr+"/auth/check"+path, nil)
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("X-Forwarded-Uri", path)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	verdict := "PASS"
	if resp.StatusCode != want {
		verdict = "FAIL"
	}
	fmt.Printf("%s %s auth=%q status=%d want=%d\n", verdict, path, scheme(authorization), resp.StatusCode, want)

	for k, v := range resp.Header {
		if strings.HasPrefix(strings.ToLower(k), "x-user-") {
			fmt.Printf("    %s: %s\n", k, strings.Join(v, ", "))
		}
	}

	return resp.StatusCode == want
}

func scheme(authorization string) string {
	s, _, _ := strings.Cut(authorization, " ")
	return s
}
