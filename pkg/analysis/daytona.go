package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"neuralsalvage/pkg/media"
	"neuralsalvage/pkg/restclient"
)

const (
	maxSandboxOutput = 4000
	sandboxExecLimit = 30 * time.Second
)

type sandboxRuntime struct {
	language string
	command  string
}

var runtimes = map[string]sandboxRuntime{
	".py": {language: "python", command: "python3"},
	".js": {language: "javascript", command: "node"},
	".ts": {language: "typescript", command: "npx --yes tsx"},
}

// DaytonaSandbox runs code files in a throwaway Daytona sandbox.
type DaytonaSandbox struct {
	api          *restclient.Client
	log          *zap.Logger
	pollInterval time.Duration
	startTimeout time.Duration
}

func NewDaytonaSandbox(baseURL, apiKey string, log *zap.Logger) *DaytonaSandbox {
	return &DaytonaSandbox{
		api:          restclient.New(baseURL, restclient.WithBearer(apiKey), restclient.WithTimeout(sandboxExecLimit+15*time.Second)),
		log:          log,
		pollInterval: time.Second,
		startTimeout: time.Minute,
	}
}

func (d *DaytonaSandbox) Run(ctx context.Context, fileName, code string) (media.SandboxRun, error) {
	ext := strings.ToLower(path.Ext(fileName))
	rt, ok := runtimes[ext]
	if !ok {
		return media.SandboxRun{}, ErrUnsupportedLanguage
	}

	created, err := d.api.DoJSON(ctx, http.MethodPost, "/sandbox", map[string]any{
		"language":         rt.language,
		"autoStopInterval": 5,
		"labels":           map[string]string{"app": "neuralsalvage"},
	})
	if err != nil {
		return media.SandboxRun{}, fmt.Errorf("create sandbox: %w", err)
	}
	id := created.Get("id").String()
	if id == "" {
		return media.SandboxRun{}, errors.New("create sandbox: response has no id")
	}
	defer d.destroy(context.WithoutCancel(ctx), id)

	if err := d.waitStarted(ctx, id, created.Get("state").String()); err != nil {
		return media.SandboxRun{}, err
	}

	file := "/tmp/main" + ext
	cmd := fmt.Sprintf("sh -c 'echo %s | base64 -d > %s && %s %s'",
		base64.StdEncoding.EncodeToString([]byte(code)), file, rt.command, file)
	res, err := d.api.DoJSON(ctx, http.MethodPost, "/toolbox/"+url.PathEscape(id)+"/toolbox/process/execute", map[string]any{
		"command": cmd,
		"timeout": int(sandboxExecLimit.Seconds()),
	})
	if err != nil {
		return media.SandboxRun{}, fmt.Errorf("execute in sandbox: %w", err)
	}
	return media.SandboxRun{
		ExitCode: int(res.Get("exitCode").Int()),
		Output:   excerpt(res.Get("result").String(), maxSandboxOutput),
	}, nil
}

func (d *DaytonaSandbox) waitStarted(ctx context.Context, id, state string) error {
	ctx, cancel := context.WithTimeout(ctx, d.startTimeout)
	defer cancel()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		switch state {
		case "started":
			return nil
		case "error", "build_failed", "destroyed":
			return fmt.Errorf("sandbox %s entered state %q", id, state)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("sandbox %s not started: %w", id, ctx.Err())
		case <-ticker.C:
		}
		res, err := d.api.DoJSON(ctx, http.MethodGet, "/sandbox/"+url.PathEscape(id), nil)
		if err != nil {
			return fmt.Errorf("poll sandbox: %w", err)
		}
		state = res.Get("state").String()
	}
}

func (d *DaytonaSandbox) destroy(ctx context.Context, id string) {
	if _, err := d.api.Do(ctx, http.MethodDelete, "/sandbox/"+url.PathEscape(id)+"?force=true", nil); err != nil {
		d.log.Warn("destroy sandbox", zap.String("sandbox_id", id), zap.Error(err))
	}
}
