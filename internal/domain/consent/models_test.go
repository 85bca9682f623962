package consent

import "testing"

func TestStatusActive(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusInitiated, true},
		{StatusWaiting, true},
		{StatusGiven, true},
		{StatusSuspended, true},
		{StatusDenied, false},
		{StatusExpired, false},
		{StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Active(); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusInitiated, false},
		{StatusWaiting, false},
		{StatusGiven, false},
		{StatusSuspended, false},
		{StatusDenied, true},
		{StatusExpired, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegisterParamsValidate(t *testing.T) {
	valid := RegisterParams{
		Provider:      "gocardless",
		UserID:        1,
		InstitutionID: "BANK_X",
		CallbackURI:   "https://app.example/done",
	}

	tests := []struct {
		name    string
		mutate  func(p *RegisterParams)
		wantErr bool
	}{
		{"Valid", func(p *RegisterParams) {}, false},
		{"MissingProvider", func(p *RegisterParams) { p.Provider = "" }, true},
		{"ZeroUserID", func(p *RegisterParams) { p.UserID = 0 }, true},
		{"NegativeUserID", func(p *RegisterParams) { p.UserID = -5 }, true},
		{"MissingInstitution", func(p *RegisterParams) { p.InstitutionID = "" }, true},
		{"MissingCallback", func(p *RegisterParams) { p.CallbackURI = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
