// Package domain define contratos e tipos de domínio para a admissão de requisições:
// rate limit por janela fixa, rastreamento de abuso e limite de concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
