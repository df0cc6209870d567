// Package hotelmock is an in-memory stand-in for the hotel REST backend,
// used for local development and demos against a real LLM.
//
// Rooms and the restaurant menu are fixed fixtures; reservations and table
// bookings live in process memory and reset on restart. Error responses use
// the backend envelope {code, message, status}.
package hotelmock

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Room is a hotel room. The backend identifies rooms by URL parameter only,
// so the body carries no id field.
type Room struct {
	RoomType      string   `json:"roomType"`
	PricePerNight float64  `json:"pricePerNight"`
	Capacity      int      `json:"capacity"`
	Amenities     []string `json:"amenities"`
}

// Reservation is a room booking.
type Reservation struct {
	ID               string  `json:"id"`
	Status           string  `json:"status"`
	CheckInDate      string  `json:"checkInDate"`
	CheckOutDate     string  `json:"checkOutDate"`
	NumberOfAdults   int     `json:"numberOfAdults"`
	NumberOfChildren int     `json:"numberOfChildren"`
	RoomID           int     `json:"roomId"`
	TotalPrice       float64 `json:"totalPrice"`
}

// MenuItem is one dish on the restaurant menu.
type MenuItem struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// TableReservation is a restaurant table booking.
type TableReservation struct {
	ID     int    `json:"id"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Guests int    `json:"guests"`
	Status string `json:"status"`
}

// reservationPrice is the deterministic total returned for every created
// reservation; the mock does no price arithmetic.
const reservationPrice = 670.99

// Server holds the mutable state behind the mock API.
type Server struct {
	mu sync.Mutex

	rooms []Room
	menu  []MenuItem

	reservations map[int]*Reservation
	tables       map[int]*TableReservation
	nextResID    int
	nextTableID  int
}

// NewServer creates a Server pre-loaded with the room and menu fixtures.
func NewServer() *Server {
	return &Server{
		rooms:        fixtureRooms(),
		menu:         fixtureMenu(),
		reservations: make(map[int]*Reservation),
		tables:       make(map[int]*TableReservation),
		nextResID:    1,
		nextTableID:  1,
	}
}

// Router builds the chi handler for the mock API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", s.listRooms)
			r.Post("/filter", s.filterRooms)
			r.Get("/{id}", s.getRoom)
		})
		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", s.listReservations)
			r.Post("/", s.createReservation)
			r.Get("/{id}", s.getReservation)
			r.Put("/{id}", s.updateReservation)
			r.Delete("/{id}", s.deleteReservation)
		})
		r.Route("/restaurant", func(r chi.Router) {
			r.Get("/menu", s.getMenu)
			r.Route("/reservations", func(r chi.Router) {
				r.Get("/", s.listTables)
				r.Post("/", s.createTable)
				r.Get("/{id}", s.getTable)
				r.Put("/{id}", s.updateTable)
				r.Delete("/{id}", s.deleteTable)
			})
		})
	})
	return r
}

// --- rooms ---

func (s *Server) listRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rooms)
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	// Rooms are 1-indexed into the fixture list.
	if err != nil || id < 1 || id > len(s.rooms) {
		writeEnvelope(w, "ROOM_NOT_FOUND", "Room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.rooms[id-1])
}

func (s *Server) filterRooms(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CheckInDate      string `json:"checkInDate"`
		CheckOutDate     string `json:"checkOutDate"`
		NumberOfAdults   int    `json:"numberOfAdults"`
		NumberOfChildren int    `json:"numberOfChildren"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, "VALIDATION_ERROR", "invalid filter body", http.StatusUnprocessableEntity)
		return
	}

	// Capacity is the only filter criterion; dates are accepted but ignored.
	total := req.NumberOfAdults + req.NumberOfChildren
	matched := make([]Room, 0)
	for _, room := range s.rooms {
		if room.Capacity >= total {
			matched = append(matched, room)
		}
	}
	writeJSON(w, http.StatusOK, matched)
}

// --- reservations ---

func (s *Server) listReservations(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]*Reservation, 0, len(s.reservations))
	for _, res := range s.reservations {
		out = append(out, res)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getReservation(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	s.mu.Lock()
	res, ok := s.reservations[id]
	s.mu.Unlock()
	if !ok {
		writeEnvelope(w, "RESERVATION_NOT_FOUND", "Reservation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) createReservation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CheckInDate      string `json:"checkInDate"`
		CheckOutDate     string `json:"checkOutDate"`
		NumberOfAdults   int    `json:"numberOfAdults"`
		NumberOfChildren int    `json:"numberOfChildren"`
		RoomID           int    `json:"roomId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, "VALIDATION_ERROR", "invalid reservation body", http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	id := s.nextResID
	s.nextResID++
	res := &Reservation{
		ID:               strconv.Itoa(id),
		Status:           "PENDING",
		CheckInDate:      req.CheckInDate,
		CheckOutDate:     req.CheckOutDate,
		NumberOfAdults:   req.NumberOfAdults,
		NumberOfChildren: req.NumberOfChildren,
		RoomID:           req.RoomID,
		TotalPrice:       reservationPrice,
	}
	s.reservations[id] = res
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) updateReservation(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var req struct {
		CheckInDate      *string `json:"checkInDate"`
		CheckOutDate     *string `json:"checkOutDate"`
		NumberOfAdults   *int    `json:"numberOfAdults"`
		NumberOfChildren *int    `json:"numberOfChildren"`
		Status           *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, "VALIDATION_ERROR", "invalid update body", http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[id]
	if !ok {
		writeEnvelope(w, "RESERVATION_NOT_FOUND", "Reservation not found", http.StatusNotFound)
		return
	}
	if req.CheckInDate != nil {
		res.CheckInDate = *req.CheckInDate
	}
	if req.CheckOutDate != nil {
		res.CheckOutDate = *req.CheckOutDate
	}
	if req.NumberOfAdults != nil {
		res.NumberOfAdults = *req.NumberOfAdults
	}
	if req.NumberOfChildren != nil {
		res.NumberOfChildren = *req.NumberOfChildren
	}
	if req.Status != nil {
		res.Status = *req.Status
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) deleteReservation(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	s.mu.Lock()
	_, ok := s.reservations[id]
	delete(s.reservations, id)
	s.mu.Unlock()
	if !ok {
		writeEnvelope(w, "RESERVATION_NOT_FOUND", "Reservation not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- restaurant ---

func (s *Server) getMenu(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.menu)
}

func (s *Server) listTables(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]*TableReservation, 0, len(s.tables))
	for _, tr := range s.tables {
		out = append(out, tr)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getTable(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	s.mu.Lock()
	tr, ok := s.tables[id]
	s.mu.Unlock()
	if !ok {
		writeEnvelope(w, "TABLE_RESERVATION_NOT_FOUND", "Table reservation not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (s *Server) createTable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date   string `json:"date"`
		Time   string `json:"time"`
		Guests int    `json:"guests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, "VALIDATION_ERROR", "invalid table reservation body", http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	id := s.nextTableID
	s.nextTableID++
	tr := &TableReservation{
		ID:     id,
		Date:   req.Date,
		Time:   req.Time,
		Guests: req.Guests,
		Status: "CONFIRMED",
	}
	s.tables[id] = tr
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, tr)
}

func (s *Server) updateTable(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	var req struct {
		Date   *string `json:"date"`
		Time   *string `json:"time"`
		Guests *int    `json:"guests"`
		Status *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, "VALIDATION_ERROR", "invalid update body", http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.tables[id]
	if !ok {
		writeEnvelope(w, "TABLE_RESERVATION_NOT_FOUND", "Table reservation not found", http.StatusNotFound)
		return
	}
	if req.Date != nil {
		tr.Date = *req.Date
	}
	if req.Time != nil {
		tr.Time = *req.Time
	}
	if req.Guests != nil {
		tr.Guests = *req.Guests
	}
	if req.Status != nil {
		tr.Status = *req.Status
	}
	writeJSON(w, http.StatusOK, tr)
}

func (s *Server) deleteTable(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	s.mu.Lock()
	_, ok := s.tables[id]
	delete(s.tables, id)
	s.mu.Unlock()
	if !ok {
		writeEnvelope(w, "TABLE_RESERVATION_NOT_FOUND", "Table reservation not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
		"status":  status,
	})
}
