package handlers

import (
	"log"
	"net/http"
	"os"
)

type DocHandler struct{}

func NewDocHandler() *DocHandler {
	return &DocHandler{}
}

// GetAppMinVersion tells clients the oldest app build this API still supports.
func (h *DocHandler) GetAppMinVersion(w http.ResponseWriter, r *http.Request) {
	appAndroidMinVersion := os.Getenv("ANDROID_MIN_VERSION")
	appIOSMinVersion := os.Getenv("IOS_MIN_VERSION")
	if appAndroidMinVersion == "" || appIOSMinVersion == "" {
		log.Println("Min version environment variables are not set")
		respondWithError(w, http.StatusInternalServerError, "Version info unavailable")
		return
	}

	type MinVersion struct {
		MinAndroidVersion string `json:"min_android_version_code"`
		MinIOSVersion     string `json:"min_ios_version_code"`
		UpdateMessage     string `json:"update_message"`
	}

	respondWithJSON(w, http.StatusOK, &MinVersion{
		MinAndroidVersion: appAndroidMinVersion,
		MinIOSVersion:     appIOSMinVersion,
		UpdateMessage:     "An important update is available! Please update to continue using the app.",
	})
}
