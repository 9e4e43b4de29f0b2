package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"syscall"

	"afdata/autofocus"
	"afdata/search"
)

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// ClassifyAPIError explains an AutoFocus failure in operator terms. It returns an empty
// string for nil errors.
func ClassifyAPIError(err error, host string) string {
	if err == nil {
		return ""
	}

	if re, ok := autofocus.AsRemoteRequestError(err); ok {
		switch re.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Sprintf("AutoFocus rejected the API key (HTTP %d).\n"+
				"  Remediation:\n"+
				"  - Pass a valid key with --api-key or AFDATA_AUTOFOCUS_API_KEY\n"+
				"  - Check the key has not expired in the AutoFocus portal", re.StatusCode)
		case http.StatusTooManyRequests:
			return fmt.Sprintf("AutoFocus quota exhausted (HTTP %d).\n"+
				"  Remediation:\n"+
				"  - Wait for the minute or daily point bucket to refill\n"+
				"  - Lower api.requests_per_second or search.chunk_size", re.StatusCode)
		case http.StatusBadRequest, http.StatusConflict:
			return fmt.Sprintf("AutoFocus refused the search (HTTP %d).\n"+
				"  Remediation:\n"+
				"  - Check the query file against the AutoFocus query syntax\n"+
				"  - Verify the input list matches search.hash_type", re.StatusCode)
		}
		return fmt.Sprintf("AutoFocus request failed with HTTP %d.\n"+
			"  Remediation:\n"+
			"  - Review the response body printed above\n"+
			"  - Retry later if the service reports an outage", re.StatusCode)
	}

	if errors.Is(err, search.ErrRetriesExhausted) {
		return fmt.Sprintf("Connection to %s kept failing and the retry budget ran out.\n"+
			"  Remediation:\n"+
			"  - Check network connectivity to the AutoFocus API\n"+
			"  - Raise search.retry.max_attempts (0 retries forever)", host)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("Connection to AutoFocus at %s timed out.\n"+
			"  Remediation:\n"+
			"  - Raise api.timeout\n"+
			"  - Verify network connectivity: nc -zv %s 443", host, host)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			(opErr.Err != nil && containsIgnoreCase(opErr.Err.Error(), "connection refused")) {
			return fmt.Sprintf("Connection refused by %s.\n"+
				"  Remediation:\n"+
				"  - Verify api.hostname in config.yaml\n"+
				"  - Check for a proxy or firewall in the way", host)
		}
	}

	if containsIgnoreCase(err.Error(), "no such host") {
		return fmt.Sprintf("Cannot resolve AutoFocus host %s.\n"+
			"  Remediation:\n"+
			"  - Verify api.hostname in config.yaml\n"+
			"  - Check DNS configuration", host)
	}

	return fmt.Sprintf("AutoFocus request to %s failed: %v", host, err)
}

// ClassifySQLiteError explains a run ledger failure in operator terms
func ClassifySQLiteError(err error, dbPath string) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()
	absPath, _ := filepath.Abs(dbPath)
	parentDir := filepath.Dir(absPath)

	switch {
	case containsIgnoreCase(errStr, "permission denied") || containsIgnoreCase(errStr, "access denied"):
		return fmt.Sprintf("Permission denied accessing the run ledger at %s.\n"+
			"  Remediation:\n"+
			"  - Check file permissions: ls -la %s\n"+
			"  - Check directory permissions: ls -la %s", absPath, absPath, parentDir)

	case containsIgnoreCase(errStr, "database is locked") || containsIgnoreCase(errStr, "SQLITE_BUSY"):
		return fmt.Sprintf("Run ledger at %s is locked by another process.\n"+
			"  Remediation:\n"+
			"  - Check for another afdata run: ps aux | grep afdata\n"+
			"  - Check for lock files: ls -la %s*", absPath, absPath)

	case containsIgnoreCase(errStr, "disk full") || containsIgnoreCase(errStr, "no space") || containsIgnoreCase(errStr, "SQLITE_FULL"):
		return fmt.Sprintf("Disk full - cannot write the run ledger at %s.\n"+
			"  Remediation:\n"+
			"  - Check available disk space: df -h %s", absPath, parentDir)

	case containsIgnoreCase(errStr, "corrupt") || containsIgnoreCase(errStr, "malformed"):
		return fmt.Sprintf("Run ledger at %s appears to be corrupted.\n"+
			"  Remediation:\n"+
			"  - Check integrity: sqlite3 %s \"PRAGMA integrity_check;\"\n"+
			"  - The ledger only holds run history; moving it aside starts a fresh one", absPath, absPath)

	case containsIgnoreCase(errStr, "read-only"):
		return fmt.Sprintf("Run ledger location is on a read-only file system: %s.\n"+
			"  Remediation:\n"+
			"  - Point data_paths.ledger at a writable location", absPath)
	}

	return fmt.Sprintf("Failed to open the run ledger at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure the directory %s exists and is writable", absPath, err, parentDir)
}
