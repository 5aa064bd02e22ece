package quota

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/EgorLis/Bottlebot/internal/metrics"
)

const dateLayout = "2006-01-02"

// Kind — вид действия, по которому ведётся счётчик.
type Kind int

const (
	KindPick Kind = iota
	KindThrow
)

func (k Kind) String() string {
	if k == KindThrow {
		return "throw"
	}
	return "pick"
}

// Record — дневные счётчики одного пользователя.
type Record struct {
	Pick  int `json:"pick"`
	Throw int `json:"throw"`
}

type fileData struct {
	LastResetDate string            `json:"last_reset_date"`
	Users         map[string]Record `json:"users"`
}

// Store хранит дневные счётчики в JSON-файле. Все операции берут один
// мьютекс на весь блок «проверка даты + чтение + изменение + запись»,
// так что сброс на границе суток не гонится с параллельными командами.
type Store struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
	data fileData
	now  func() time.Time // подменяется в тестах
}

// Open загружает стор из файла. Битый или отсутствующий файл молча
// заменяется пустым стором с сегодняшней датой.
func Open(path string, log *zap.Logger) (*Store, error) {
	s := &Store{
		path: path,
		log:  log,
		now:  time.Now,
	}
	_ = os.MkdirAll(filepath.Dir(path), 0755)

	b, err := os.ReadFile(path)
	if err == nil {
		var d fileData
		if uerr := json.Unmarshal(b, &d); uerr == nil && d.LastResetDate != "" {
			if d.Users == nil {
				d.Users = map[string]Record{}
			}
			s.data = d
			return s, nil
		}
		log.Warn("quota file corrupt, starting fresh", zap.String("path", path))
	} else if !os.IsNotExist(err) {
		log.Warn("quota file unreadable, starting fresh", zap.String("path", path), zap.Error(err))
	}

	s.data = fileData{
		LastResetDate: s.today(),
		Users:         map[string]Record{},
	}
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// GetOrInit возвращает запись пользователя, создавая нулевую при
// первом обращении за день. Новая запись сразу сохраняется.
func (s *Store) GetOrInit(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.resetLocked(); err != nil {
		return Record{}, err
	}
	rec, ok := s.data.Users[id]
	if !ok {
		s.data.Users[id] = Record{}
		if err := s.saveLocked(); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

// Increment увеличивает счётчик на 1 и синхронно сохраняет весь стор.
func (s *Store) Increment(id string, k Kind) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.resetLocked(); err != nil {
		return Record{}, err
	}
	rec := s.data.Users[id]
	if k == KindThrow {
		rec.Throw++
	} else {
		rec.Pick++
	}
	s.data.Users[id] = rec
	if err := s.saveLocked(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Peek возвращает запись без создания новой (для админ-запросов).
func (s *Store) Peek(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.resetLocked(); err != nil {
		s.log.Error("quota reset failed", zap.Error(err))
	}
	rec, ok := s.data.Users[id]
	return rec, ok
}

// Reset обнуляет счётчики пользователя. false — записи сегодня не было.
func (s *Store) Reset(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.resetLocked(); err != nil {
		return false, err
	}
	if _, ok := s.data.Users[id]; !ok {
		return false, nil
	}
	s.data.Users[id] = Record{}
	if err := s.saveLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// Totals — агрегат за сегодня: пользователи, всего поднято, всего брошено.
func (s *Store) Totals() (users, picks, throws int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.resetLocked(); err != nil {
		s.log.Error("quota reset failed", zap.Error(err))
	}
	users = len(s.data.Users)
	for _, rec := range s.data.Users {
		picks += rec.Pick
		throws += rec.Throw
	}
	return users, picks, throws
}

// Save — финальный сброс на диск при остановке.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) today() string {
	return s.now().Format(dateLayout)
}

// resetLocked — ленивый суточный сброс: при смене даты вся карта
// пользователей очищается и стор сохраняется. Повторный вызов в тот же
// день ничего не меняет.
func (s *Store) resetLocked() error {
	today := s.today()
	if s.data.LastResetDate == today {
		return nil
	}
	s.data.LastResetDate = today
	s.data.Users = map[string]Record{}
	metrics.QuotaResetsTotal.Inc()
	s.log.Info("daily quota reset", zap.String("date", today))
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	b, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0644)
}
