package preflight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"nutriflow/internal/config"
)

const httpCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCamera verifies the configured camera device or frames directory.
func CheckCamera(cfg config.Camera) Result {
	const name = "Camera"

	probe := ProbeCamera(cfg)
	switch cfg.Backend {
	case config.CameraBackendFile:
		if err := unix.Access(cfg.FramesDir, unix.R_OK|unix.X_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.FramesDir, err)}
		}
		if probe.Frames == 0 {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: no images)", cfg.FramesDir)}
		}
	default:
		if !probe.Detected {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: not present)", probe.Device)}
		}
		if err := unix.Access(probe.Device, unix.R_OK|unix.W_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", probe.Device, err)}
		}
	}
	return Result{Name: name, Passed: true, Detail: probe.Detail()}
}

// CheckDetector verifies that the detector command resolves or the
// detector endpoint answers.
func CheckDetector(ctx context.Context, cfg config.Detector) Result {
	const name = "Detector"

	switch cfg.Backend {
	case config.DetectorBackendHTTP:
		if strings.TrimSpace(cfg.URL) == "" {
			return Result{Name: name, Detail: "missing url"}
		}
		status, err := probeHTTP(ctx, cfg.URL)
		if err != nil {
			return Result{Name: name, Detail: summarizeHTTPError(err)}
		}
		if status >= http.StatusInternalServerError {
			return Result{Name: name, Detail: fmt.Sprintf("endpoint error (%d)", status)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", cfg.URL)}
	default:
		if strings.TrimSpace(cfg.Command) == "" {
			return Result{Name: name, Detail: "missing command"}
		}
		path, err := exec.LookPath(cfg.Command)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s not found", cfg.Command)}
		}
		return Result{Name: name, Passed: true, Detail: path}
	}
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// CheckMealService verifies the Ollama server is reachable and, when model is
// set, that the model has been pulled.
func CheckMealService(ctx context.Context, generateURL, model string) Result {
	const name = "Meal service"

	base, err := ollamaBase(generateURL)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, httpCheckTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/api/tags", nil)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("unexpected status (%d)", resp.StatusCode)}
	}

	model = strings.TrimSpace(model)
	if model == "" {
		return Result{Name: name, Passed: true, Detail: base + " reachable"}
	}
	var tags ollamaTags
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("decode model list: %v", err)}
	}
	for _, m := range tags.Models {
		if m.Name == model || strings.TrimSuffix(m.Name, ":latest") == model {
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable, model %s present", base, model)}
		}
	}
	return Result{Name: name, Detail: fmt.Sprintf("model %s not pulled (run: ollama pull %s)", model, model)}
}

// CheckNtfy verifies the ntfy server answers.
func CheckNtfy(ctx context.Context, baseURL string) Result {
	const name = "Notifications"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing ntfy_url"}
	}
	status, err := probeHTTP(ctx, base+"/v1/health")
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	if status >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", status)}
	}
	return Result{Name: name, Passed: true, Detail: base + " reachable"}
}

// CheckMQTT verifies a TCP connection to the broker can be opened.
func CheckMQTT(ctx context.Context, broker string) Result {
	const name = "MQTT broker"

	addr := strings.TrimSpace(broker)
	if u, err := url.Parse(addr); err == nil && u.Host != "" {
		addr = u.Host
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "1883")
	}
	dialer := net.Dialer{Timeout: httpCheckTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: addr + " reachable"}
}

func ollamaBase(generateURL string) (string, error) {
	raw := strings.TrimSpace(generateURL)
	if raw == "" {
		return "", errors.New("missing url")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

func probeHTTP(ctx context.Context, target string) (int, error) {
	checkCtx, cancel := context.WithTimeout(ctx, httpCheckTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func summarizeHTTPError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (service unreachable)"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Sprintf("unreachable (%v)", opErr.Err)
	}
	return err.Error()
}
