package infrastructure

import "github.com/Abbracx/loan-be/internal/service/user/domain"

// ToDomainUser 将数据库模型转换为领域模型
func ToDomainUser(m *UserModel) *domain.User {
	if m == nil {
		return nil
	}
	return &domain.User{
		PKID:                m.PKID,
		ID:                  m.UUID,
		Username:            m.Username,
		Email:               m.Email,
		FirstName:           m.FirstName,
		LastName:            m.LastName,
		PasswordHash:        m.Password,
		Gender:              m.Gender,
		PhoneNumber:         m.PhoneNumber,
		ProfilePhoto:        m.ProfilePhoto,
		Country:             m.Country,
		City:                m.City,
		IsStaff:             m.IsStaff,
		IsActive:            m.IsActive,
		DateJoined:          m.DateJoined,
		FailedLoginAttempts: m.FailedLoginAttempts,
		IsLocked:            m.IsLocked,
	}
}

// FromDomainUser 将领域模型转换为数据库模型
func FromDomainUser(u *domain.User) *UserModel {
	if u == nil {
		return nil
	}
	return &UserModel{
		PKID:                u.PKID,
		UUID:                u.ID,
		Username:            u.Username,
		Email:               u.Email,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		Password:            u.PasswordHash,
		Gender:              u.Gender,
		PhoneNumber:         u.PhoneNumber,
		ProfilePhoto:        u.ProfilePhoto,
		Country:             u.Country,
		City:                u.City,
		IsStaff:             u.IsStaff,
		IsActive:            u.IsActive,
		DateJoined:          u.DateJoined,
		FailedLoginAttempts: u.FailedLoginAttempts,
		IsLocked:            u.IsLocked,
	}
}
