package domain

// Connection — разрешённое подключение к внешней системе.
//
// Получается из ConnectionResolver по источнику ("user:my-db").
// Содержит встроенный каталог провайдера, по которому выбирается стратегия.
type Connection struct {
	// ID — идентификатор подключения (совпадает с источником для user:).
	ID string `json:"id" yaml:"id"`

	// Name — человекочитаемое имя подключения.
	Name string `json:"name" yaml:"name"`

	// Catalog — встроенные данные каталога провайдера.
	Catalog *Catalog `json:"catalog,omitempty" yaml:"catalog,omitempty"`

	// Details — нечувствительные параметры подключения
	// (host, port, base_url, путь к корню и т.п.).
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// ProviderKey возвращает ключ стратегии из каталога.
// Пустая строка, если каталог отсутствует.
func (c *Connection) ProviderKey() string {
	if c == nil || c.Catalog == nil {
		return ""
	}
	return c.Catalog.ProviderKey
}

// Detail извлекает строковый параметр подключения.
func (c *Connection) Detail(key string) string {
	if c == nil || c.Details == nil {
		return ""
	}
	if v, ok := c.Details[key].(string); ok {
		return v
	}
	return ""
}

// Catalog — каталог провайдера, встроенный в подключение.
//
// Для декларативных стратегий (rest-declarative) содержит шаблоны действий.
type Catalog struct {
	// ID — идентификатор каталога ("community/github@v0.1.0").
	ID string `json:"id" yaml:"id"`

	// Name — имя каталога.
	Name string `json:"name" yaml:"name"`

	// ProviderKey — ключ стратегии, обслуживающей этот каталог.
	ProviderKey string `json:"connector_provider_key" yaml:"connector_provider_key"`

	// BrowseConfig — конфигурация декларативной стратегии:
	// base_url_template, action_templates, auth и т.п.
	BrowseConfig map[string]any `json:"browse_config,omitempty" yaml:"browse_config,omitempty"`
}

// ActionTemplate возвращает шаблон декларативного действия по ключу.
func (c *Catalog) ActionTemplate(key string) map[string]any {
	if c == nil || c.BrowseConfig == nil {
		return nil
	}
	templates, ok := c.BrowseConfig["action_templates"].(map[string]any)
	if !ok {
		return nil
	}
	tpl, ok := templates[key].(map[string]any)
	if !ok {
		return nil
	}
	return tpl
}

// BaseURL возвращает базовый URL декларативной стратегии.
func (c *Catalog) BaseURL() string {
	if c == nil || c.BrowseConfig == nil {
		return ""
	}
	if v, ok := c.BrowseConfig["base_url_template"].(string); ok {
		return v
	}
	return ""
}

// Secrets — чувствительные данные подключения (пароли, токены, ключи).
// Никогда не сериализуются и не логируются.
type Secrets map[string]string
