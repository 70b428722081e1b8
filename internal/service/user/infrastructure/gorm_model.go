package infrastructure

import "time"

// UserModel 对应数据库中的 users 表
type UserModel struct {
	PKID                uint      `gorm:"column:pkid;primaryKey;autoIncrement"`
	UUID                string    `gorm:"column:id;type:char(36);uniqueIndex;not null"`
	Username            string    `gorm:"column:username;type:varchar(255);uniqueIndex;not null"`
	Email               string    `gorm:"column:email;type:varchar(254);uniqueIndex;index:idx_users_email_active,priority:1;not null"`
	FirstName           string    `gorm:"column:first_name;type:varchar(50);index:idx_users_name,priority:1;not null"`
	LastName            string    `gorm:"column:last_name;type:varchar(50);index:idx_users_name,priority:2;not null"`
	Password            string    `gorm:"column:password;type:varchar(128);not null"`
	Gender              string    `gorm:"column:gender;type:varchar(20);default:Other"`
	PhoneNumber         string    `gorm:"column:phone_number;type:varchar(30)"`
	ProfilePhoto        string    `gorm:"column:profile_photo;type:varchar(255)"`
	Country             string    `gorm:"column:country;type:varchar(2);default:NG"`
	City                string    `gorm:"column:city;type:varchar(180);default:Abuja"`
	IsStaff             bool      `gorm:"column:is_staff;index;not null"`
	IsActive            bool      `gorm:"column:is_active;index;index:idx_users_email_active,priority:2;not null"`
	DateJoined          time.Time `gorm:"column:date_joined;index;not null"`
	FailedLoginAttempts int       `gorm:"column:failed_login_attempts;not null"`
	IsLocked            bool      `gorm:"column:is_locked;index;not null"`
}

// TableName 指定 GORM 应该使用的表名
func (UserModel) TableName() string {
	return "users"
}
