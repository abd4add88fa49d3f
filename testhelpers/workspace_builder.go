package testhelpers

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WorkspaceBuilder lays out a Cargo workspace on disk for tests.
//
//	root := testhelpers.NewWorkspaceBuilder(t).
//		WithService("auth").
//		WithFile("services/auth/src/handlers.rs", src).
//		Build()
type WorkspaceBuilder struct {
	t         *testing.T
	root      string
	declare   bool
	container string
	files     map[string]string
	order     []string
}

// NewWorkspaceBuilder creates a builder rooted in a fresh temp directory
// with the legacy services/ container.
func NewWorkspaceBuilder(t *testing.T) *WorkspaceBuilder {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("canonicalize temp dir: %v", err)
	}
	return &WorkspaceBuilder{
		t:         t,
		root:      root,
		container: "services",
		files:     make(map[string]string),
	}
}

// WithCargoWorkspace writes a root Cargo.toml declaring [workspace]
func (b *WorkspaceBuilder) WithCargoWorkspace() *WorkspaceBuilder {
	b.declare = true
	return b
}

// WithContainer switches the service container, e.g. "Backend/services"
func (b *WorkspaceBuilder) WithContainer(container string) *WorkspaceBuilder {
	b.container = container
	return b
}

// WithService adds a valid service with a manifest and entry file
func (b *WorkspaceBuilder) WithService(name string) *WorkspaceBuilder {
	dir := b.container + "/" + name
	b.WithFile(dir+"/Cargo.toml", ServiceManifest(name))
	b.WithFile(dir+"/src/main.rs", "fn main() {\n}\n")
	return b
}

// WithFile adds or replaces a file at a workspace-relative slash path
func (b *WorkspaceBuilder) WithFile(rel, content string) *WorkspaceBuilder {
	if _, ok := b.files[rel]; !ok {
		b.order = append(b.order, rel)
	}
	b.files[rel] = content
	return b
}

// Build writes everything and returns the canonical root
func (b *WorkspaceBuilder) Build() string {
	b.t.Helper()
	if b.declare {
		b.write("Cargo.toml", "[workspace]\nmembers = [\"services/*\"]\nresolver = \"2\"\n")
	}
	for _, rel := range b.order {
		b.write(rel, b.files[rel])
	}
	return b.root
}

// Root returns the root without writing files
func (b *WorkspaceBuilder) Root() string {
	return b.root
}

func (b *WorkspaceBuilder) write(rel, content string) {
	b.t.Helper()
	WriteFile(b.t, b.root, rel, content)
}

// WriteFile writes content to root/rel, creating parent directories
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

// ServiceManifest returns a minimal valid service Cargo.toml
func ServiceManifest(name string) string {
	return fmt.Sprintf("[package]\nname = %q\nversion = \"0.1.0\"\nedition = \"2021\"\n\n[dependencies]\n", name)
}

// OrdersSource is a fixture whose create_order function spans lines 10-14
const OrdersSource = `use crate::models::Order;

pub struct OrderStore {
    pub name: String,
    count: u32,
}

// Creates an order record.
// Kept at a fixed position for span assertions.
pub fn create_order(id: u32) -> Order {
    let order = Order::new(id);
    validate(&order);
    order
}

fn validate(order: &Order) -> bool {
    order.is_valid()
}
`

// HandlerSource calls create_order exactly once, on line 40, and registers
// GET /orders/:id against a show handler that does not exist
const HandlerSource = `use crate::orders::create_order;
use axum::{extract::Path, routing::get, Json, Router};

pub fn router() -> Router {
    Router::new()
        .route("/orders", get(list).post(create))
        .route("/orders/:id", get(show))
}

pub struct OrderView {
    pub id: u32,
    pub total: u64,
}

async fn list() -> Json<Vec<OrderView>> {
    let views = Vec::new();
    log_request("list");
    Json(views)
}

fn log_request(name: &str) {
    tracing::info!("handling {}", name);
}

fn parse_total(raw: &str) -> u64 {
    raw.trim()
        .parse::<u64>()
        .unwrap_or_default()
}

fn clamp(total: u64) -> u64 {
    if total > 10_000 {
        10_000
    } else {
        total
    }
}

pub async fn create(Path(id): Path<u32>) -> Json<OrderView> {
    let order = create_order(id);
    log_request("create");
    Json(OrderView { id: order.id, total: clamp(parse_total("0")) })
}
`
