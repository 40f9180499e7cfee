package timespec

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrMalformedDuration 表示时间串不符合 <数字><单位> 格式。
var ErrMalformedDuration = errors.New("timespec: malformed duration")

var tokenRe = regexp.MustCompile(`^([0-9]+)([smhd])`)

var unitMap = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// Parse 解析形如 "30m"、"2d" 的时间串并返回对应时长。
// 只匹配开头的数字加单位，后续字符一律忽略。
func Parse(input string) (time.Duration, error) {
	matches := tokenRe.FindStringSubmatch(input)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedDuration, input)
	}

	num, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedDuration, input)
	}

	return time.Duration(num) * unitMap[matches[2]], nil
}

// Seconds 返回时间串对应的总秒数。
func Seconds(input string) (int64, error) {
	d, err := Parse(input)
	if err != nil {
		return 0, err
	}
	return int64(d / time.Second), nil
}
