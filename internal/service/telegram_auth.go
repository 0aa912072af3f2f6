package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"crazygift/internal/domain"
)

var (
	ErrInitDataMissingHash = errors.New("init data: hash is missing")
	ErrInitDataSignature   = errors.New("init data: bad signature")
	ErrInitDataExpired     = errors.New("init data: auth_date is too old")
)

// допустимое расхождение часов клиента в будущее
const initDataClockSkew = 5 * time.Minute

// ValidateTelegramInitData проверяет подпись Telegram WebApp initData и возраст auth_date
func ValidateTelegramInitData(initData, botToken string, maxAge time.Duration) (url.Values, error) {
	return validateInitDataAt(initData, botToken, maxAge, time.Now())
}

func validateInitDataAt(initData, botToken string, maxAge time.Duration, now time.Time) (url.Values, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitDataSignature, err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrInitDataMissingHash
	}
	values.Del("hash")

	provided, err := hex.DecodeString(hash)
	if err != nil {
		return nil, ErrInitDataSignature
	}
	if !hmac.Equal(initDataSignature(values, botToken), provided) {
		return nil, ErrInitDataSignature
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, ErrInitDataExpired
	}
	issued := time.Unix(authDate, 0)
	if now.Sub(issued) > maxAge || issued.Sub(now) > initDataClockSkew {
		return nil, ErrInitDataExpired
	}

	return values, nil
}

// секрет HMAC("WebAppData", token), подпись над отсортированными key=value через \n
func initDataSignature(values url.Values, botToken string) []byte {
	dataCheck := make([]string, 0, len(values))
	for k, v := range values {
		dataCheck = append(dataCheck, k+"="+strings.Join(v, ""))
	}
	sort.Strings(dataCheck)

	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(botToken))

	h := hmac.New(sha256.New, secretKey.Sum(nil))
	h.Write([]byte(strings.Join(dataCheck, "\n")))
	return h.Sum(nil)
}

type initDataUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ParseTelegramIdentity достает пользователя и start_param из проверенных значений
func ParseTelegramIdentity(values url.Values) (domain.TelegramIdentity, error) {
	raw := values.Get("user")
	if raw == "" {
		return domain.TelegramIdentity{}, fmt.Errorf("%w: init data has no user", domain.ErrValidation)
	}
	var u initDataUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return domain.TelegramIdentity{}, fmt.Errorf("%w: bad user json", domain.ErrValidation)
	}
	if u.ID == 0 {
		return domain.TelegramIdentity{}, fmt.Errorf("%w: user id is missing", domain.ErrValidation)
	}
	return domain.TelegramIdentity{
		TelegramID: u.ID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		StartParam: values.Get("start_param"),
	}, nil
}
