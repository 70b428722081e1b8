package application

import (
	"time"

	"github.com/Abbracx/loan-be/internal/pkg/pagination"
	"github.com/Abbracx/loan-be/internal/service/user/domain"
)

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// RegisterRequest 是注册用例的输入数据
type RegisterRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Password   string `json:"password"`
	RePassword string `json:"re_password"`
}

// RegisteredUserResponse 注册成功后只返回基本字段。
type RegisteredUserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type ListUsersRequest struct {
	Search   string
	Ordering string
	Page     pagination.Params
}

// UserResponse 是用户对外的 JSON 表示，姓名按首字母大写输出。
type UserResponse struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	FullName     string `json:"full_name"`
	Gender       string `json:"gender"`
	PhoneNumber  string `json:"phone_number"`
	ProfilePhoto string `json:"profile_photo"`
	Country      string `json:"country"`
	City         string `json:"city"`
	IsStaff      bool   `json:"is_staff"`
	IsActive     bool   `json:"is_active"`
	DateJoined   string `json:"date_joined"`
}

type UserPage = pagination.Page[*UserResponse]

func toUserResponse(u *domain.User, loc *time.Location) *UserResponse {
	return &UserResponse{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FirstName:    domain.TitleCase(u.FirstName),
		LastName:     domain.TitleCase(u.LastName),
		FullName:     u.FullName(),
		Gender:       u.Gender,
		PhoneNumber:  u.PhoneNumber,
		ProfilePhoto: u.ProfilePhoto,
		Country:      u.Country,
		City:         u.City,
		IsStaff:      u.IsStaff,
		IsActive:     u.IsActive,
		DateJoined:   u.DateJoined.In(loc).Format(timeLayout),
	}
}
