package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"places_bot/src/types"
)

type AddPlaceRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Address  string `json:"address"`
}

type UpdatePlaceRequest struct {
	Address string `json:"address"`
}

// PlaceView is a place without its store id.
type PlaceView struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Address  string `json:"address"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// maxBodyBytes caps request bodies; a place is three short strings.
const maxBodyBytes = 1 << 20

func HandleAddPlace(w http.ResponseWriter, r *http.Request, client types.DataStore, log *slog.Logger) {
	var req AddPlaceRequest
	if err := decodeBody(w, r, &req); err != nil {
		badBody(w, log, err, "Invalid request payload")
		return
	}
	name, category, address := types.Normalize(req.Name), types.Normalize(req.Category), types.Normalize(req.Address)
	if err := validateAddPlace(name, address); err != nil {
		writeError(w, log, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := client.CreatePlace(r.Context(), name, category, address); err != nil {
		storageFailure(w, r, log, err)
		return
	}
	writeJSON(w, log, http.StatusCreated, messageResponse{Message: fmt.Sprintf("Place '%s' added successfully", name)})
}

func validateAddPlace(name, address string) error {
	if name == "" {
		return types.Missing("name")
	}
	if address == "" {
		return types.Missing("address")
	}
	return nil
}

func HandlePlaceByName(w http.ResponseWriter, r *http.Request, client types.DataStore, log *slog.Logger) {
	address, err := client.FindAddressByName(r.Context(), types.Normalize(r.PathValue("name")))
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, log, http.StatusNotFound, "Place not found")
		return
	}
	if err != nil {
		storageFailure(w, r, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, map[string]string{"address": address})
}

func HandlePlaceByAddress(w http.ResponseWriter, r *http.Request, client types.DataStore, log *slog.Logger) {
	name, err := client.FindNameByAddress(r.Context(), types.Normalize(r.PathValue("address")))
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, log, http.StatusNotFound, "Place not found")
		return
	}
	if err != nil {
		storageFailure(w, r, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, map[string]string{"name": name})
}

func HandleListPlaces(w http.ResponseWriter, r *http.Request, client types.DataStore, log *slog.Logger) {
	places, err := client.ListByCategory(r.Context(), types.Compose(r.PathValue("category")))
	if err != nil {
		storageFailure(w, r, log, err)
		return
	}
	if len(places) == 0 {
		writeError(w, log, http.StatusNotFound, "No places found for this category")
		return
	}

	views := make([]PlaceView, 0, len(places))
	for _, p := range places {
		views = append(views, PlaceView{Name: p.Name, Category: p.Category, Address: p.Address})
	}
	writeJSON(w, log, http.StatusOK, views)
}

func HandleListAllPlaces(w http.ResponseWriter, r *http.Request, client types.DataStore, log *slog.Logger) {
	places, err := client.ListAll(r.Context())
	if err != nil {
		storageFailure(w, r, log, err)
		return
	}
	if len(places) == 0 {
		writeError(w, log, http.StatusNotFound, "No places stored")
		return
	}
	writeJSON(w, log, http.StatusOK, places)
}

func HandleUpdatePlace(w http.ResponseWriter, r *http.Request, client types.DataStore, log *slog.Logger) {
	name := types.Normalize(r.PathValue("name"))

	var req UpdatePlaceRequest
	if err := decodeBody(w, r, &req); err != nil {
		badBody(w, log, err, "Invalid input")
		return
	}
	address := types.Normalize(req.Address)
	if address == "" {
		writeError(w, log, http.StatusBadRequest, "Invalid input")
		return
	}

	n, err := client.UpdateAddress(r.Context(), name, address)
	if err != nil {
		storageFailure(w, r, log, err)
		return
	}
	if n == 0 {
		writeError(w, log, http.StatusNotFound, "Place not found")
		return
	}
	writeJSON(w, log, http.StatusOK, messageResponse{Message: fmt.Sprintf("Place '%s' updated successfully", name)})
}

func HandleDeletePlace(w http.ResponseWriter, r *http.Request, client types.DataStore, log *slog.Logger) {
	name := types.Normalize(r.PathValue("name"))
	n, err := client.DeleteByName(r.Context(), name)
	if err != nil {
		storageFailure(w, r, log, err)
		return
	}
	if n == 0 {
		writeError(w, log, http.StatusNotFound, "Place not found")
		return
	}
	writeJSON(w, log, http.StatusOK, messageResponse{Message: fmt.Sprintf("Place '%s' deleted successfully", name)})
}

func storageFailure(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	log.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", RequestID(r.Context()), "err", err)
	writeError(w, log, http.StatusInternalServerError, "Internal server error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func badBody(w http.ResponseWriter, log *slog.Logger, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, log, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	writeError(w, log, http.StatusBadRequest, msg)
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	writeJSON(w, log, status, errorResponse{Error: msg})
}
