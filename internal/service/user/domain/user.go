// internal/service/user/domain/user.go
package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// 注册时未提供的资料字段的默认值。
const (
	DefaultGender       = "Other"
	DefaultPhoneNumber  = "+234123456789"
	DefaultProfilePhoto = "/profile_default.png"
	DefaultCountry      = "NG"
	DefaultCity         = "Abuja"

	MinPasswordLength = 8
)

// User 是用户聚合根，登录标识为 Email。
type User struct {
	PKID         uint
	ID           string
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Gender       string
	PhoneNumber  string
	ProfilePhoto string
	Country      string
	City         string
	IsStaff      bool
	IsActive     bool
	DateJoined   time.Time

	FailedLoginAttempts int
	IsLocked            bool
}

// Registration 是注册用例的输入。
type Registration struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// Validate 校验注册字段，不包含唯一性检查。
func (r Registration) Validate() error {
	switch {
	case strings.TrimSpace(r.Username) == "":
		return fmt.Errorf("%w: username is required", ErrInvalidUser)
	case strings.TrimSpace(r.FirstName) == "":
		return fmt.Errorf("%w: first_name is required", ErrInvalidUser)
	case strings.TrimSpace(r.LastName) == "":
		return fmt.Errorf("%w: last_name is required", ErrInvalidUser)
	case len(r.Password) < MinPasswordLength:
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidUser, MinPasswordLength)
	}
	addr, err := mail.ParseAddress(r.Email)
	if err != nil || addr.Address != r.Email {
		return fmt.Errorf("%w: enter a valid email address", ErrInvalidUser)
	}
	return nil
}

// NewUser 工厂函数，passwordHash 由调用方用 PasswordHasher 生成。
func NewUser(reg Registration, passwordHash string, now time.Time) (*User, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(reg.Username),
		Email:        normalizeEmail(reg.Email),
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		PasswordHash: passwordHash,
		Gender:       DefaultGender,
		PhoneNumber:  DefaultPhoneNumber,
		ProfilePhoto: DefaultProfilePhoto,
		Country:      DefaultCountry,
		City:         DefaultCity,
		IsActive:     true,
		DateJoined:   now,
	}, nil
}

// normalizeEmail 域名部分转小写，本地部分保持原样。
func normalizeEmail(email string) string {
	local, domain, found := strings.Cut(strings.TrimSpace(email), "@")
	if !found {
		return email
	}
	return local + "@" + strings.ToLower(domain)
}

// RegisterFailedLogin 记录一次密码错误，达到上限时锁定账户。返回本次是否触发了锁定。
func (u *User) RegisterFailedLogin(maxAttempts int) bool {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts && !u.IsLocked {
		u.IsLocked = true
		return true
	}
	return false
}

func (u *User) ResetFailedLogins() {
	u.FailedLoginAttempts = 0
}

func (u *User) FullName() string {
	return TitleCase(u.FirstName) + " " + TitleCase(u.LastName)
}

// TitleCase 每个单词首字母大写，其余小写。
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if prevLetter {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToUpper(r))
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}
