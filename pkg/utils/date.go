package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

var (
	datePattern = regexp.MustCompile(`(\d{4})\s*[-/.年]\s*(\d{1,2})\s*[-/.月]\s*(\d{1,2})\s*日?(?:\s*(\d{1,2}):(\d{2})(?::(\d{2}))?)?`)
	// Site CMSs put the publish date into article paths as /2024/0105/ or /2024/01/05/.
	urlDatePattern      = regexp.MustCompile(`(\d{4})/(\d{2})(\d{2})/`)
	urlSlashDatePattern = regexp.MustCompile(`(\d{4})/(\d{2})/(\d{2})`)
	minutesAgoPattern   = regexp.MustCompile(`(\d+)\s*分钟前`)
	hoursAgoPattern     = regexp.MustCompile(`(\d+)\s*小时前`)
	epochPattern        = regexp.MustCompile(`^\d{10}$`)
)

// NormalizeDate turns a free-form publish time into "YYYY-MM-DD" or
// "YYYY-MM-DD HH:MM:SS". Relative expressions are resolved against now.
func NormalizeDate(raw string, now time.Time) (string, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))
	if s == "" {
		return "", false
	}

	if t, ok := relativeDate(s, now); ok {
		return t.Format(DateTimeLayout), true
	}
	if epochPattern.MatchString(s) {
		sec, _ := strconv.ParseInt(s, 10, 64)
		return time.Unix(sec, 0).In(now.Location()).Format(DateTimeLayout), true
	}
	if out, ok := fromDateMatch(datePattern.FindStringSubmatch(s)); ok {
		return out, true
	}

	t, err := dateparse.ParseIn(s, now.Location())
	if err != nil {
		return "", false
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && !strings.Contains(s, ":") {
		return t.Format(DateLayout), true
	}
	return t.Format(DateTimeLayout), true
}

// ExtractDate finds the first date inside a longer text such as "发布时间：2023-05-04 10:00".
func ExtractDate(text string, now time.Time) (string, bool) {
	if out, ok := fromDateMatch(datePattern.FindStringSubmatch(text)); ok {
		return out, true
	}
	return NormalizeDate(text, now)
}

// DateFromURL reads the date segment many CMS article paths carry.
func DateFromURL(rawURL string) (string, bool) {
	for _, p := range []*regexp.Regexp{urlDatePattern, urlSlashDatePattern} {
		m := p.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		if out, ok := buildDate(m[1], m[2], m[3], "", "", ""); ok {
			return out, true
		}
	}
	return "", false
}

// ParseTime parses a normalized publish time in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range []string{DateTimeLayout, DateLayout} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return dateparse.ParseIn(s, loc)
}

func fromDateMatch(m []string) (string, bool) {
	if m == nil {
		return "", false
	}
	return buildDate(m[1], m[2], m[3], m[4], m[5], m[6])
}

func buildDate(y, mo, d, h, mi, sec string) (string, bool) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(mo)
	day, _ := strconv.Atoi(d)
	if year < 1990 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return "", false
	}
	if h == "" {
		return t.Format(DateLayout), true
	}
	hour, _ := strconv.Atoi(h)
	minute, _ := strconv.Atoi(mi)
	second, _ := strconv.Atoi(sec)
	if hour > 23 || minute > 59 || second > 59 {
		return t.Format(DateLayout), true
	}
	return t.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second).Format(DateTimeLayout), true
}

func relativeDate(s string, now time.Time) (time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case strings.Contains(s, "刚刚"):
		return now, true
	case strings.Contains(s, "分钟前"):
		n := 10
		if m := minutesAgoPattern.FindStringSubmatch(s); m != nil {
			n, _ = strconv.Atoi(m[1])
		}
		return now.Add(-time.Duration(n) * time.Minute), true
	case strings.Contains(s, "小时前"):
		n := 1
		if m := hoursAgoPattern.FindStringSubmatch(s); m != nil {
			n, _ = strconv.Atoi(m[1])
		}
		return now.Add(-time.Duration(n) * time.Hour), true
	case strings.Contains(s, "前天"):
		return today.AddDate(0, 0, -2), true
	case strings.Contains(s, "昨天"):
		return today.AddDate(0, 0, -1), true
	}
	return time.Time{}, false
}
