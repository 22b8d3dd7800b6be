package auth

import (
	"fmt"
	"sync"
	"time"
)

const (
	// Security event types
	EventTypeBruteForce         = "brute_force"
	EventTypeCredentialStuffing = "credential_stuffing"
	EventTypeAccountEnumeration = "account_enumeration"
	EventTypeSuspiciousActivity = "suspicious_activity"

	// Thresholds. Counts are kept per IP, accumulate with no time window and are never reset.
	BruteForceThreshold         = 5  // Failed logins per IP
	CredentialStuffingThreshold = 10 // Failed logins per IP
	AccountEnumerationThreshold = 3  // Enumeration attempts per IP (usernames are not compared)
	IPBlockDuration             = 30 * time.Minute
)

// SecurityEvent records one detected anomaly for later inspection.
type SecurityEvent struct {
	EventType string
	Username  string
	IPAddress string
	UserAgent string
	RiskScore int
	CreatedAt time.Time
}

type ipTracking struct {
	failedLoginCount        int
	accountEnumerationCount int
	blockedUntil            time.Time
}

func (t *ipTracking) isBlocked() bool {
	return !t.blockedUntil.IsZero() && time.Now().Before(t.blockedUntil)
}

// SecurityDetector detects brute-force, credential-stuffing and account-enumeration
// patterns against the basic-auth credential backend and blocks offending IPs. It tracks
// state in memory only — this guards the credential backend's own login endpoint, not the
// rule engine's allow/forbid decision.
type SecurityDetector struct {
	mu       sync.Mutex
	tracking map[string]*ipTracking
	events   []SecurityEvent
}

// NewSecurityDetector creates a new security detector.
func NewSecurityDetector() *SecurityDetector {
	return &SecurityDetector{tracking: make(map[string]*ipTracking)}
}

func (d *SecurityDetector) track(ip string) *ipTracking {
	t, ok := d.tracking[ip]
	if !ok {
		t = &ipTracking{}
		d.tracking[ip] = t
	}
	return t
}

// RecordFailedLogin records a failed login attempt and applies brute-force and
// credential-stuffing detection, blocking the IP if a threshold is crossed.
func (d *SecurityDetector) RecordFailedLogin(ipAddress, username, userAgent string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.track(ipAddress)
	if t.isBlocked() {
		return fmt.Errorf("IP %s is blocked", ipAddress)
	}
	t.failedLoginCount++

	if t.failedLoginCount >= BruteForceThreshold {
		t.blockedUntil = time.Now().Add(IPBlockDuration)
		d.events = append(d.events, SecurityEvent{
			EventType: EventTypeBruteForce,
			Username:  username,
			IPAddress: ipAddress,
			UserAgent: userAgent,
			RiskScore: 90,
			CreatedAt: time.Now(),
		})
		return fmt.Errorf("IP blocked due to brute force detection")
	}
	if t.failedLoginCount >= CredentialStuffingThreshold {
		t.blockedUntil = time.Now().Add(IPBlockDuration)
		d.events = append(d.events, SecurityEvent{
			EventType: EventTypeCredentialStuffing,
			IPAddress: ipAddress,
			UserAgent: userAgent,
			RiskScore: 95,
			CreatedAt: time.Now(),
		})
		return fmt.Errorf("IP blocked due to credential stuffing detection")
	}
	return nil
}

// RecordAccountEnumeration records an attempt against a nonexistent account and blocks the
// IP once its number of recorded attempts reaches the enumeration threshold; whether the
// usernames differ is not checked.
func (d *SecurityDetector) RecordAccountEnumeration(ipAddress, username, userAgent string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.track(ipAddress)
	if t.isBlocked() {
		return fmt.Errorf("IP %s is blocked", ipAddress)
	}
	t.accountEnumerationCount++

	if t.accountEnumerationCount >= AccountEnumerationThreshold {
		t.blockedUntil = time.Now().Add(IPBlockDuration)
		d.events = append(d.events, SecurityEvent{
			EventType: EventTypeAccountEnumeration,
			Username:  username,
			IPAddress: ipAddress,
			UserAgent: userAgent,
			RiskScore: 85,
			CreatedAt: time.Now(),
		})
		return fmt.Errorf("IP blocked due to account enumeration detection")
	}
	return nil
}

// IsBlocked reports whether ipAddress is currently under a detection-triggered block.
func (d *SecurityDetector) IsBlocked(ipAddress string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tracking[ipAddress]
	if !ok {
		return false
	}
	return t.isBlocked()
}

// Events returns a snapshot of recorded security events, most recent last.
func (d *SecurityDetector) Events() []SecurityEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SecurityEvent, len(d.events))
	copy(out, d.events)
	return out
}
