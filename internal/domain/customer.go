package domain

import (
	"strings"
	"time"
)

// Customer описывает покупателя магазина.
type Customer struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет обязательные поля клиента и возвращает список замечаний.
func (c *Customer) Validate() []error {
	var errs []error

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, ErrCustomerNameRequired)
	}
	email := strings.TrimSpace(c.Email)
	switch {
	case email == "":
		errs = append(errs, ErrCustomerEmailRequired)
	case !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@"):
		errs = append(errs, ErrCustomerEmailInvalid)
	}

	return errs
}
