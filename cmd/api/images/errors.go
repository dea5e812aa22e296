package images

type ErrResponse struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

func (e ErrResponse) Error() string {
	return e.Message
}

var ErrResponseUnsupportedFormat = ErrResponse{140, "the image must be a jpg, jpeg, png or webp file."}
var ErrResponseImageTooLarge = ErrResponse{141, "the image must be smaller than 2 MiB."}
var ErrResponseStorageIO = ErrResponse{142, "could not store the image."}
var ErrResponseEncodeFailed = ErrResponse{143, "could not optimize the image."}
