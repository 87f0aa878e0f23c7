package frontend

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultProbeTimeout = 2 * time.Second

// IWProbe reads the received signal strength of a co-channel Wi-Fi link
// by invoking the iw utility. It implements the external signal probe
// used for opportunistic cross-calibration of the power scale.
type IWProbe struct {
	iface   string
	timeout time.Duration
}

// NewIWProbe creates a probe for the given wireless interface.
func NewIWProbe(iface string) *IWProbe {
	return &IWProbe{iface: iface, timeout: defaultProbeTimeout}
}

// ReferencePower runs `iw dev <iface> link` and parses the reported
// signal level in dBm. Any failure, including an unassociated link, is
// returned as an error for the caller to log and ignore.
func (p *IWProbe) ReferencePower() (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "iw", "dev", p.iface, "link").Output()
	if err != nil {
		return 0, fmt.Errorf("running iw: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "signal:") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		dbm, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0, fmt.Errorf("parsing signal level %q: %w", fields[1], err)
		}
		return dbm, nil
	}

	return 0, fmt.Errorf("no signal level reported for %s", p.iface)
}

// StaticProbe returns a fixed reference power. Test implementation of
// the signal probe contract.
type StaticProbe struct {
	PowerDBm float64
	Err      error
}

func (p StaticProbe) ReferencePower() (float64, error) {
	return p.PowerDBm, p.Err
}
