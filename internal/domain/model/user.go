package model

// Роли персонала.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// User — учётная запись персонала (admin/staff).
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	PasswordHash string `json:"passwordHash"`
}

// PublicUser — представление пользователя без хэша пароля.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// Public возвращает представление пользователя для API.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Role:     u.Role,
	}
}

// IsValidRole проверяет, что роль — одна из ролей персонала.
func IsValidRole(role string) bool {
	return role == RoleStaff || role == RoleAdmin
}
