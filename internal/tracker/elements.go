package tracker

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Elements is one satellite's two-line element set.
type Elements struct {
	CatalogNumber int
	Name          string
	Epoch         time.Time
	Line1         string
	Line2         string
}

const tleLineLen = 69

// ParseElements reads 3-line TLE data (name, line 1, line 2). Entries that
// fail validation are skipped with a warning.
func ParseElements(r io.Reader, logger *slog.Logger) ([]Elements, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var out []Elements
	for i := 0; i+2 < len(lines); {
		name, line1, line2 := lines[i], lines[i+1], lines[i+2]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			i++
			continue
		}
		i += 3

		if err := checkLine(line1); err != nil {
			logger.Warn("skipping TLE entry", "name", name, "line", 1, "error", err)
			continue
		}
		if err := checkLine(line2); err != nil {
			logger.Warn("skipping TLE entry", "name", name, "line", 2, "error", err)
			continue
		}

		catnr, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
		if err != nil {
			logger.Warn("skipping TLE entry with invalid catalog number", "name", name, "error", err)
			continue
		}
		epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
		if err != nil {
			logger.Warn("skipping TLE entry with invalid epoch", "name", name, "error", err)
			continue
		}

		out = append(out, Elements{
			CatalogNumber: catnr,
			Name:          strings.TrimSpace(name),
			Epoch:         epoch,
			Line1:         line1,
			Line2:         line2,
		})
	}
	return out, nil
}

// checkLine verifies the length and the modulo-10 checksum in column 69.
func checkLine(line string) error {
	if len(line) != tleLineLen {
		return fmt.Errorf("line length %d, want %d", len(line), tleLineLen)
	}
	sum := 0
	for _, c := range line[:tleLineLen-1] {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	want := int(line[tleLineLen-1] - '0')
	if sum%10 != want {
		return fmt.Errorf("checksum %d, want %d", sum%10, want)
	}
	return nil
}

// parseEpoch converts a YYDDD.DDDDDDDD epoch. Years 57-99 are 19xx.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}
	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}
	day, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}

	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((day - 1) * float64(24*time.Hour))), nil
}
