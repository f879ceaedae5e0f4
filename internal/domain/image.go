package domain

// ImageAsset describes an image once its bytes have been written to blob storage.
// ID and StorageKey are fixed at ingestion time and never change afterwards.
type ImageAsset struct {
	ID             string `json:"id"`
	StorageKey     string `json:"storage_key"`
	StorageAddress string `json:"storage_address"`
	Extension      string `json:"extension"`
	ContentType    string `json:"content_type"`
	Size           int64  `json:"size"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

// StorageKeyFor builds the blob key for an image: "<image_id>.<extension>".
func StorageKeyFor(imageID, ext string) string {
	return imageID + "." + ext
}
