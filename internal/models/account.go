package models

// Account is one credential record. It only ever exists inside a decrypted vault payload.
type Account struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Notes    string `json:"notes"`
}

// AccountFields are the user-editable fields of an account.
type AccountFields struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Notes    string `json:"notes"`
}

// AccountUpdate carries a partial update; nil fields stay unchanged.
type AccountUpdate struct {
	Title    *string `json:"title,omitempty"`
	URL      *string `json:"url,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// NewAccount builds an account from its fields.
func NewAccount(id string, f AccountFields) Account {
	return Account{
		ID:       id,
		Title:    f.Title,
		URL:      f.URL,
		Email:    f.Email,
		Password: f.Password,
		Notes:    f.Notes,
	}
}

// Fields returns the editable part of the account.
func (a Account) Fields() AccountFields {
	return AccountFields{
		Title:    a.Title,
		URL:      a.URL,
		Email:    a.Email,
		Password: a.Password,
		Notes:    a.Notes,
	}
}

// Apply returns a copy of a with the non-nil fields of u applied.
func (u AccountUpdate) Apply(a Account) Account {
	if u.Title != nil {
		a.Title = *u.Title
	}
	if u.URL != nil {
		a.URL = *u.URL
	}
	if u.Email != nil {
		a.Email = *u.Email
	}
	if u.Password != nil {
		a.Password = *u.Password
	}
	if u.Notes != nil {
		a.Notes = *u.Notes
	}
	return a
}

// Empty reports whether the update changes nothing.
func (u AccountUpdate) Empty() bool {
	return u.Title == nil && u.URL == nil && u.Email == nil && u.Password == nil && u.Notes == nil
}

// CloneAccounts copies a list so the caller can't mutate session state.
func CloneAccounts(in []Account) []Account {
	if in == nil {
		return []Account{}
	}
	out := make([]Account, len(in))
	copy(out, in)
	return out
}
