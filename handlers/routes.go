package handlers

import (
	"net/http"

	"taskboard/middleware"

	"github.com/gorilla/mux"
)

// NewRouter wires the API, health check and static files. CORS runs ahead of
// routing so preflights for any path are answered.
func NewRouter(h *Handler, staticDir, corsOrigin string) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	if staticDir != "" {
		r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	api := r.PathPrefix("/api").Subrouter()
	requireAuth := middleware.RequireAuth(h.Auth)
	optionalAuth := middleware.OptionalAuth(h.Auth)

	public := api.PathPrefix("/auth").Subrouter()
	if h.Auth.LocalCredentials() {
		public.Handle("/register", optionalAuth(http.HandlerFunc(h.Register))).Methods(http.MethodPost)
		public.HandleFunc("/login", h.Login).Methods(http.MethodPost)
		public.HandleFunc("/guest", h.Guest).Methods(http.MethodPost)
		public.HandleFunc("/forgot-password", h.ForgotPassword).Methods(http.MethodPost)
		public.HandleFunc("/reset-password", h.ResetPassword).Methods(http.MethodPost)
	}
	public.Handle("/logout", optionalAuth(http.HandlerFunc(h.Logout))).Methods(http.MethodPost)

	me := api.PathPrefix("/auth/me").Subrouter()
	me.Use(requireAuth)
	me.HandleFunc("", h.Me).Methods(http.MethodGet)
	me.HandleFunc("", h.UpdateProfile).Methods(http.MethodPatch)
	me.HandleFunc("", h.DeleteAccount).Methods(http.MethodDelete)

	tasks := api.PathPrefix("/tasks").Subrouter()
	tasks.Use(requireAuth)
	tasks.HandleFunc("", h.ListTasks).Methods(http.MethodGet)
	tasks.HandleFunc("", h.CreateTask).Methods(http.MethodPost)
	tasks.HandleFunc("/reorder", h.ReorderTasks).Methods(http.MethodPut)
	tasks.HandleFunc("/{id:[0-9]+}", h.GetTask).Methods(http.MethodGet)
	tasks.HandleFunc("/{id:[0-9]+}", h.UpdateTask).Methods(http.MethodPatch, http.MethodPut)
	tasks.HandleFunc("/{id:[0-9]+}", h.DeleteTask).Methods(http.MethodDelete)
	tasks.HandleFunc("/{id:[0-9]+}/restore", h.RestoreTask).Methods(http.MethodPost)
	tasks.HandleFunc("/{id:[0-9]+}/move", h.MoveTask).Methods(http.MethodPatch)
	tasks.HandleFunc("/{id:[0-9]+}/subtasks", h.ListSubtasks).Methods(http.MethodGet)
	tasks.HandleFunc("/{id:[0-9]+}/subtasks", h.CreateSubtask).Methods(http.MethodPost)
	tasks.HandleFunc("/{id:[0-9]+}/subtasks/{subtaskID:[0-9]+}", h.UpdateSubtask).Methods(http.MethodPatch)
	tasks.HandleFunc("/{id:[0-9]+}/subtasks/{subtaskID:[0-9]+}", h.DeleteSubtask).Methods(http.MethodDelete)

	activity := api.PathPrefix("/activity").Subrouter()
	activity.Use(requireAuth)
	activity.HandleFunc("", h.ListActivity).Methods(http.MethodGet)

	return middleware.Recoverer(middleware.RequestLogger(middleware.CORS(corsOrigin)(r)))
}
