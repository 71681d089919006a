package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"kakeibo/internal/core"
)

type expenseCategoryJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type walletCategoryJSON struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Balance   float64 `json:"balance"`
	CreatedAt string  `json:"created_at"`
}

type creditCategoryJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type createCategoryRequest struct {
	Name    string      `json:"name"`
	Balance json.Number `json:"balance"` // wallets only, major units
}

func (req createCategoryRequest) trimmedName() (string, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", core.Validationf("name is required")
	}
	if len(name) > 100 {
		return "", core.Validationf("name too long (max 100 characters)")
	}
	return name, nil
}

func (s *Server) handleListExpenseCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListExpenseCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]expenseCategoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, expenseCategoryJSON{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt.Format(timeLayout)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateExpenseCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	name, err := req.trimmedName()
	if err != nil {
		writeError(w, r, err)
		return
	}
	cat, err := s.store.CreateExpenseCategory(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expenseCategoryJSON{ID: cat.ID, Name: cat.Name, CreatedAt: cat.CreatedAt.Format(timeLayout)})
}

func (s *Server) handleDeleteExpenseCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.DeleteExpenseCategory(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListWalletCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListWalletCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]walletCategoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, walletCategoryJSON{
			ID:        c.ID,
			Name:      c.Name,
			Balance:   core.Units(c.Balance),
			CreatedAt: c.CreatedAt.Format(timeLayout),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateWalletCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	name, err := req.trimmedName()
	if err != nil {
		writeError(w, r, err)
		return
	}
	var balance int64
	if req.Balance != "" {
		balance, err = core.ParseSignedDecimalToCents(req.Balance.String())
		if err != nil {
			writeError(w, r, core.Validationf("invalid balance %q", req.Balance.String()))
			return
		}
	}
	cat, err := s.store.CreateWalletCategory(r.Context(), name, balance)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, walletCategoryJSON{
		ID:        cat.ID,
		Name:      cat.Name,
		Balance:   core.Units(cat.Balance),
		CreatedAt: cat.CreatedAt.Format(timeLayout),
	})
}

func (s *Server) handleDeleteWalletCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.DeleteWalletCategory(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleSetWalletBalance is the manual override used to reconcile a
// wallet against the real account balance.
func (s *Server) handleSetWalletBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Balance json.Number `json:"balance"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := core.ParseSignedDecimalToCents(req.Balance.String())
	if err != nil {
		writeError(w, r, core.Validationf("invalid balance %q", req.Balance.String()))
		return
	}
	if err := s.store.SetWalletBalance(r.Context(), id, balance); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "balance": core.Units(balance)})
}

func (s *Server) handleListCreditCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListCreditCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]creditCategoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, creditCategoryJSON{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt.Format(timeLayout)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCreditCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	name, err := req.trimmedName()
	if err != nil {
		writeError(w, r, err)
		return
	}
	cat, err := s.store.CreateCreditCategory(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, creditCategoryJSON{ID: cat.ID, Name: cat.Name, CreatedAt: cat.CreatedAt.Format(timeLayout)})
}

func (s *Server) handleDeleteCreditCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.DeleteCreditCategory(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
