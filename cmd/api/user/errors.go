package user

type ErrResponse struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

func (e ErrResponse) Error() string {
	return e.Message
}

var ErrResponseUserEntryBlankFields = ErrResponse{130, "fields email and password must be filled."}
var ErrResponseEmailAlreadyTaken = ErrResponse{131, "there is already an account with this email."}
var ErrResponseInvalidCredentials = ErrResponse{132, "incorrect email/password pair."}
var ErrResponseUserNotFound = ErrResponse{133, "user not found"}
