package engine

import (
	"fmt"

	"github.com/shaiso/Conduit/internal/domain"
)

// Graph — направленный ациклический граф зависимостей шагов.
//
// Строится один раз перед запуском run. Порядок выполнения определяется
// топологическими поколениями: шаги одного поколения не зависят друг от
// друга и выполняются параллельно.
type Graph struct {
	// steps — шаги по ID.
	steps map[string]*domain.Step

	// order — ID шагов в порядке объявления (для стабильности поколений).
	order []string

	// deps — ID шага → ID его зависимостей.
	deps map[string][]string

	// dependents — ID шага → ID зависящих от него шагов.
	dependents map[string][]string
}

// BuildGraph строит граф зависимостей из списка шагов.
//
// Возвращает ошибку зависимости, если depends_on ссылается на
// несуществующий шаг, и ошибку цикла (с упорядоченным списком ID),
// если граф не ацикличен. Никакого I/O не выполняет.
func BuildGraph(steps []domain.Step) (*Graph, error) {
	g := &Graph{
		steps:      make(map[string]*domain.Step, len(steps)),
		order:      make([]string, 0, len(steps)),
		deps:       make(map[string][]string, len(steps)),
		dependents: make(map[string][]string, len(steps)),
	}

	for i := range steps {
		step := &steps[i]
		g.steps[step.ID] = step
		g.order = append(g.order, step.ID)
	}

	for i := range steps {
		step := &steps[i]
		for _, depID := range step.DependsOn {
			if _, exists := g.steps[depID]; !exists {
				return nil, NewValidationError(step.ID, "depends_on",
					fmt.Sprintf("invalid dependency: %s", depID), ErrMissingDependency)
			}
			g.addEdge(depID, step.ID)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	return g, nil
}

// addEdge добавляет ребро dep → step.
// Дубликаты рёбер игнорируются, чтобы не искажать подсчёт степеней.
func (g *Graph) addEdge(from, to string) {
	for _, d := range g.deps[to] {
		if d == from {
			return
		}
	}
	g.deps[to] = append(g.deps[to], from)
	g.dependents[from] = append(g.dependents[from], to)
}

// Step возвращает шаг по ID.
func (g *Graph) Step(id string) *domain.Step {
	return g.steps[id]
}

// Size возвращает количество узлов графа.
func (g *Graph) Size() int {
	return len(g.steps)
}

// Predecessors возвращает ID зависимостей шага.
func (g *Graph) Predecessors(id string) []string {
	return g.deps[id]
}

// Generations возвращает стабильные топологические поколения.
//
// Поколение — множество шагов, все зависимости которых уже попали
// в предыдущие поколения. Внутри поколения шаги идут в порядке
// объявления в скрипте.
func (g *Graph) Generations() [][]string {
	indegree := make(map[string]int, len(g.steps))
	for id := range g.steps {
		indegree[id] = len(g.deps[id])
	}

	generations := make([][]string, 0)
	placed := 0

	for placed < len(g.steps) {
		gen := make([]string, 0)
		for _, id := range g.order {
			if indegree[id] == 0 {
				gen = append(gen, id)
			}
		}
		if len(gen) == 0 {
			// цикл; BuildGraph такого не допускает
			break
		}
		for _, id := range gen {
			indegree[id] = -1
			for _, dep := range g.dependents[id] {
				indegree[dep]--
			}
		}
		placed += len(gen)
		generations = append(generations, gen)
	}

	return generations
}

// findCycle ищет цикл алгоритмом Кана и возвращает его путь.
// Возвращает nil, если граф ацикличен.
func (g *Graph) findCycle() []string {
	indegree := make(map[string]int, len(g.steps))
	for id := range g.steps {
		indegree[id] = len(g.deps[id])
	}

	queue := make([]string, 0, len(g.steps))
	for _, id := range g.order {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range g.dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if visited == len(g.steps) {
		return nil
	}

	// Остались узлы с ненулевой степенью — среди них есть цикл.
	// Идём по зависимостям, пока не вернёмся в уже пройденный узел.
	var start string
	for _, id := range g.order {
		if indegree[id] > 0 {
			start = id
			break
		}
	}

	seen := make(map[string]int)
	path := make([]string, 0)
	current := start
	for {
		if pos, ok := seen[current]; ok {
			cycle := append([]string{}, path[pos:]...)
			return append(cycle, current)
		}
		seen[current] = len(path)
		path = append(path, current)

		next := ""
		for _, dep := range g.deps[current] {
			if indegree[dep] > 0 {
				next = dep
				break
			}
		}
		if next == "" {
			return path
		}
		current = next
	}
}
